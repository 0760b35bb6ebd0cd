package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Optional is one field of a merge-patch.
// Set is true when the key was present in the request; Null is true when it was sent as null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a present Optional carrying JSON null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr returns nil for null/absent, otherwise a pointer to a copy of the value.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// CollectionPatch is a merge-patch over the mutable fields of a CollectionItem.
// Keys outside this schema are ignored when decoding.
type CollectionPatch struct {
	Status          Optional[WatchStatus] `json:"status"`
	Rating          Optional[float64]     `json:"rating"`
	EpisodesWatched Optional[int]         `json:"episodes_watched"`
	Notes           Optional[string]      `json:"notes"`
	IsFavorite      Optional[bool]        `json:"is_favorite"`
}

// Len returns the number of recognised fields present in the patch.
func (p CollectionPatch) Len() int {
	n := 0
	for _, set := range []bool{p.Status.Set, p.Rating.Set, p.EpisodesWatched.Set, p.Notes.Set, p.IsFavorite.Set} {
		if set {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the patch carries no recognised field.
func (p CollectionPatch) IsEmpty() bool {
	return p.Len() == 0
}

// Validate checks every present field against the schema and returns
// field -> problem for each violation.
func (p CollectionPatch) Validate() map[string]string {
	problems := make(map[string]string)
	if p.Status.Set {
		if p.Status.Null {
			problems["status"] = "cannot be null"
		} else if !p.Status.Value.Valid() {
			problems["status"] = fmt.Sprintf("must be one of %s", strings.Join(statusNames(), ", "))
		}
	}
	if p.Rating.Set && !p.Rating.Null {
		if p.Rating.Value < MinRating || p.Rating.Value > MaxRating {
			problems["rating"] = "must be between 0 and 10"
		}
	}
	if p.EpisodesWatched.Set {
		if p.EpisodesWatched.Null {
			problems["episodes_watched"] = "cannot be null"
		} else if p.EpisodesWatched.Value < 0 {
			problems["episodes_watched"] = "must be zero or greater"
		}
	}
	if p.IsFavorite.Set && p.IsFavorite.Null {
		problems["is_favorite"] = "cannot be null"
	}
	return problems
}

// Columns returns column -> new value for the present fields.
// Null values map to nil so the column is cleared.
func (p CollectionPatch) Columns() map[string]any {
	cols := make(map[string]any, p.Len())
	if p.Status.Set {
		cols["status"] = p.Status.Value
	}
	if p.Rating.Set {
		cols["rating"] = p.Rating.Ptr()
	}
	if p.EpisodesWatched.Set {
		cols["episodes_watched"] = p.EpisodesWatched.Value
	}
	if p.Notes.Set {
		cols["notes"] = p.Notes.Ptr()
	}
	if p.IsFavorite.Set {
		cols["is_favorite"] = p.IsFavorite.Value
	}
	return cols
}

// ApplyTo writes the present fields onto item.
func (p CollectionPatch) ApplyTo(item *CollectionItem) {
	if p.Status.Set {
		item.Status = p.Status.Value
	}
	if p.Rating.Set {
		item.Rating = p.Rating.Ptr()
	}
	if p.EpisodesWatched.Set {
		item.EpisodesWatched = p.EpisodesWatched.Value
	}
	if p.Notes.Set {
		item.Notes = p.Notes.Ptr()
	}
	if p.IsFavorite.Set {
		item.IsFavorite = p.IsFavorite.Value
	}
}

func statusNames() []string {
	return []string{
		string(StatusWatching),
		string(StatusCompleted),
		string(StatusPlanToWatch),
		string(StatusDropped),
	}
}
