package pe

import "testing"

func TestResourceNodeSortedChildrenOrdersNamesBeforeIDs(t *testing.T) {
	node := &ResourceNode{
		Children: map[ResourceIdentifier]*ResourceNode{
			{ID: 14}:                      {Data: &ResourceData{}},
			{ID: 3}:                       {Data: &ResourceData{}},
			{IsName: true, Name: "ZETA"}:  {Data: &ResourceData{}},
			{IsName: true, Name: "ALPHA"}: {Data: &ResourceData{}},
		},
	}

	sorted := node.SortedChildren()
	if len(sorted) != 4 {
		t.Fatalf("len(sorted) = %d, want 4", len(sorted))
	}

	wantOrder := []string{"ALPHA", "ZETA", "#3", "#14"}
	for i, want := range wantOrder {
		if got := sorted[i].Key.String(); got != want {
			t.Errorf("sorted[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestResourceNodeSortedChildrenEmpty(t *testing.T) {
	node := &ResourceNode{Children: map[ResourceIdentifier]*ResourceNode{}}
	if sorted := node.SortedChildren(); len(sorted) != 0 {
		t.Errorf("len(sorted) = %d, want 0", len(sorted))
	}
}
