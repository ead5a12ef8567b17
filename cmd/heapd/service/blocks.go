package service

import (
	"fmt"

	"github.com/SierraSoftworks/connor"
	"github.com/cockroachdb/errors"
	"github.com/go-json-experiment/json"

	"github.com/joshuapare/heapkit/gcheap"
)

// BlockDocument is the queryable view of one block.
type BlockDocument struct {
	Base      uintptr `json:"base"`
	Address   string  `json:"address"`
	Size      int     `json:"size"`
	CellSize  int     `json:"cell_size"`
	Cells     int     `json:"cells"`
	LiveCells int     `json:"live_cells"`
	State     string  `json:"state"`
	Precise   bool    `json:"precise"`
	Current   bool    `json:"current"`
}

func newBlockDocument(b *gcheap.Block) BlockDocument {
	sc := b.SizeClass()
	return BlockDocument{
		Base:      b.Base(),
		Address:   fmt.Sprintf("%#x", b.Base()),
		Size:      b.Size(),
		CellSize:  b.CellSize(),
		Cells:     b.CellCount(),
		LiveCells: b.LiveCount(),
		State:     b.State().String(),
		Precise:   sc != nil && sc.IsPrecise(),
		Current:   sc != nil && sc.CurrentBlock() == b,
	}
}

type FindParams struct {
	Filter map[string]any `json:"filter"`
	Skip   int            `json:"skip"`
	Limit  int            `json:"limit"`
}

// FindBlocks returns the blocks whose document matches p.Filter, in block
// iteration order. A zero Limit means no limit.
func (s *Service) FindBlocks(p FindParams) ([]BlockDocument, error) {
	if p.Skip < 0 || p.Limit < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "skip %d limit %d", p.Skip, p.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hasFilter := len(p.Filter) > 0
	skip := p.Skip
	result := []BlockDocument{}
	for b := range s.space.Blocks() {
		if p.Limit > 0 && len(result) == p.Limit {
			break
		}

		doc := newBlockDocument(b)
		if hasFilter {
			match, err := matchDocument(p.Filter, doc)
			if err != nil {
				return nil, errors.Mark(errors.Wrap(err, "match"), ErrInvalidArgument)
			}
			if !match {
				continue
			}
		}

		if skip > 0 {
			skip--
			continue
		}
		result = append(result, doc)
	}
	return result, nil
}

// matchDocument round-trips doc through JSON so connor sees the same field
// names and number types a client does.
func matchDocument(filter map[string]any, doc BlockDocument) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, err
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, err
	}
	return connor.Match(filter, data)
}
