package core

import "testing"

func TestCanView(t *testing.T) {

	var owner = Identity{UserID: 1}
	var stranger = Identity{UserID: 2}
	var reviewer = Identity{UserID: 3, Authority: Reviewer}
	var staff = Identity{UserID: 4, Authority: Staff}
	var anonymous = Identity{}

	var want = map[ContentStatus][5]bool{
		//         owner  stranger reviewer staff  anonymous
		Draft:     {true, false, false, false, false},
		Reviewing: {true, false, true, true, false},
		Published: {true, true, true, true, true},
		Rejected:  {true, false, false, false, false},
		Hidden:    {true, false, true, true, false},
		Deleted:   {true, false, false, true, false},
	}

	for status, row := range want {
		var m = ContentMetadata{Ref: ContentRef{Type: Article, ID: 1}, Status: status, OwnerID: owner.UserID}
		for i, requester := range []Identity{owner, stranger, reviewer, staff, anonymous} {
			if got := CanView(requester, m); got != row[i] {
				t.Fatalf("CanView(%+v, %s) = %t, want %t", requester, status, got, row[i])
			}
		}
	}
}

func TestAnonymousOwnsNothing(t *testing.T) {
	var m = ContentMetadata{Status: Draft, OwnerID: 0}
	if CanView(Identity{}, m) {
		t.Fatal("anonymous must not own content without owner")
	}
}
