package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

// Match is the number of stored entities sharing a UID.
type Match int

const (
	MatchNone Match = iota
	MatchOne
	MatchMany
)

// String implements fmt.Stringer.
func (m Match) String() string {
	switch m {
	case MatchNone:
		return "none"
	case MatchOne:
		return "one"
	case MatchMany:
		return "many"
	}
	return fmt.Sprintf("Match(%d)", int(m))
}

// Resolution is the result of a UID lookup.
type Resolution struct {
	Match    Match
	Entities []*model.Entity
}

// Resolve looks up every stored entity of kind carrying uid. It always
// reads storage so that it sees the last completed write.
//
// MatchMany is an integrity violation; Resolve reports it and leaves the
// decision to fail to the caller.
func Resolve(ctx context.Context, r store.Reader, kind model.Kind, uid uuid.UUID) (Resolution, error) {
	found, err := r.FindByUID(ctx, kind, uid)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s uid %s: %w", kind, uid, err)
	}
	res := Resolution{Entities: found}
	switch {
	case len(found) == 1:
		res.Match = MatchOne
	case len(found) > 1:
		res.Match = MatchMany
	}
	return res, nil
}
