package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "student read", role: RoleStudent, action: ActionRead, allow: true},
		{name: "student write", role: RoleStudent, action: ActionWrite, allow: true},
		{name: "student review", role: RoleStudent, action: ActionReview, allow: false},
		{name: "instructor review", role: RoleInstructor, action: ActionReview, allow: true},
		{name: "instructor write", role: RoleInstructor, action: ActionWrite, allow: false},
		{name: "instructor comment", role: RoleInstructor, action: ActionComment, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestReviewer(t *testing.T) {
	if Reviewer(RoleStudent) {
		t.Fatal("student comments must not count as reviewer comments")
	}
	if !Reviewer(RoleInstructor) || !Reviewer(RoleAdmin) {
		t.Fatal("instructor and admin comments count as reviewer comments")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("instructor") != RoleInstructor {
		t.Fatal("known role should pass through")
	}
	if Normalize("nonsense") != RoleStudent {
		t.Fatal("unknown role should fall back to student")
	}
}
