package common

import "testing"

func TestCategoryTags(t *testing.T) {
	tags := CategoryPerson.Tags()
	if len(tags) != 2 || tags[0] != TagPerson || tags[1] != TagAuthor {
		t.Fatalf("person must carry Person and Author tags, got %v", tags)
	}
	for _, c := range Categories {
		if !c.Valid() {
			t.Fatalf("category %q should be valid", c)
		}
		if string(c.Tags()[0]) != string(c) {
			t.Fatalf("first tag of %q must equal the category", c)
		}
	}
	if Category("Event").Valid() {
		t.Fatal("unknown category must be invalid")
	}
	if Category("Event").Tags() != nil {
		t.Fatal("unknown category must have no tags")
	}
}

func TestEntityIDs(t *testing.T) {
	e := Entity{Category: CategoryOrganization, NameKey: "nasa", Name: "NASA"}
	if e.ID() != "Organization:nasa" {
		t.Fatalf("unexpected id %q", e.ID())
	}
	if MentionEdgeID("abc", e) != "abc->Organization:nasa" {
		t.Fatalf("unexpected edge id %q", MentionEdgeID("abc", e))
	}
}
