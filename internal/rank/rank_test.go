package rank

import "testing"

func TestFromPoints(t *testing.T) {
	cases := []struct {
		points int
		want   Tier
	}{
		{0, Bronze},
		{599, Bronze},
		{600, Silver},
		{999, Silver},
		{1000, Gold},
		{1199, Gold},
		{1200, Platinum},
		{1500, Diamond},
		{1800, Ascendant},
		{2199, Ascendant},
		{2200, Immortal},
		{9000, Immortal},
		{-50, Bronze},
	}

	for _, tc := range cases {
		if got := FromPoints(tc.points); got != tc.want {
			t.Errorf("FromPoints(%d) = %s, want %s", tc.points, got, tc.want)
		}
	}
}

func TestResolveTopFiveIsRadiant(t *testing.T) {
	if got := Resolve(650, 3); got != Radiant {
		t.Fatalf("position 3 should be Radiant, got %s", got)
	}
	if got := Resolve(650, 6); got != Silver {
		t.Fatalf("position 6 should fall back to threshold tier, got %s", got)
	}
	if got := Resolve(650, 0); got != Silver {
		t.Fatalf("unranked position should use threshold tier, got %s", got)
	}
}

func TestNext(t *testing.T) {
	tier, needed, ok := Next(950)
	if !ok || tier != Gold || needed != 50 {
		t.Fatalf("Next(950) = %s %d %v", tier, needed, ok)
	}

	if _, _, ok := Next(2200); ok {
		t.Fatal("no threshold tier above Immortal")
	}
}
