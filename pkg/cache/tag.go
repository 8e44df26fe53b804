package cache

// Tag labels a class of cached resources. A tag with an empty ID stands for
// the whole type; a tag with an ID names one item of that type.
type Tag struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// TypeTag returns a tag covering every resource of the given type.
func TypeTag(typ string) Tag { return Tag{Type: typ} }

// IDTag returns a tag for a single resource.
func IDTag(typ, id string) Tag { return Tag{Type: typ, ID: id} }

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return t.Type + "/" + t.ID
}

// covers reports whether invalidating t must drop an entry that provides p.
// A type-only tag covers every tag of its type; an ID tag covers only itself.
func (t Tag) covers(p Tag) bool {
	if t.Type != p.Type {
		return false
	}
	return t.ID == "" || t.ID == p.ID
}
