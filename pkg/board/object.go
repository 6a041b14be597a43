package board

// Object is one canvas element. Version is a per-object clock bumped on
// every local write; merges keep the higher version (ties broken by the
// later UpdatedAtMs, then by origin ID) so concurrent edits converge.
type Object struct {
	ID          string            `cbor:"id" json:"id"`
	Kind        string            `cbor:"kind" json:"kind"`
	X           float64           `cbor:"x" json:"x"`
	Y           float64           `cbor:"y" json:"y"`
	Width       float64           `cbor:"width" json:"width"`
	Height      float64           `cbor:"height" json:"height"`
	Text        string            `cbor:"text,omitempty" json:"text,omitempty"`
	Props       map[string]string `cbor:"props,omitempty" json:"props,omitempty"`
	Version     uint64            `cbor:"version" json:"version"`
	Origin      string            `cbor:"origin,omitempty" json:"origin,omitempty"`
	Deleted     bool              `cbor:"deleted,omitempty" json:"deleted,omitempty"`
	UpdatedAtMs int64             `cbor:"updatedAtMs" json:"updatedAtMs"`
}

func (o *Object) clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	if o.Props != nil {
		c.Props = make(map[string]string, len(o.Props))
		for k, v := range o.Props {
			c.Props[k] = v
		}
	}
	return &c
}

// supersedes reports whether o should replace prev during a merge.
func (o *Object) supersedes(prev *Object) bool {
	if prev == nil {
		return true
	}
	if o.Version != prev.Version {
		return o.Version > prev.Version
	}
	if o.UpdatedAtMs != prev.UpdatedAtMs {
		return o.UpdatedAtMs > prev.UpdatedAtMs
	}
	return o.Origin > prev.Origin
}
