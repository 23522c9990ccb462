package postindex

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/indexquery"
)

// scoreWindow caps how many hits a function score order considers.
const scoreWindow = 10000

// Page selects a slice of the ordered hits.
type Page struct {
	Limit  int
	Offset int
}

// Result is one page of matching post ids.
type Result struct {
	IDs   []int64
	Total uint64
}

// Search executes a compiled document. Plain orders are sorted by the index; random and
// rank orders score the first scoreWindow hits here and page over that window.
func (b *BleveIndex) Search(ctx context.Context, doc *indexquery.Document, page Page) (*Result, error) {
	q, err := translate(doc.Bool())
	if err != nil {
		return nil, fmt.Errorf("failed to translate index document: %w", err)
	}

	if doc.FunctionScore != nil {
		return b.searchScored(ctx, doc, q, page)
	}

	req := bleve.NewSearchRequestOptions(q, page.Limit, page.Offset, false)
	req.SortByCustom(sortOrder(doc.Sort))
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	ids, err := hitIDs(res.Hits)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("index search",
		zap.Uint64("total", res.Total),
		zap.Int("hits", len(ids)),
		zap.Duration("duration", res.Took),
	)
	return &Result{IDs: ids, Total: res.Total}, nil
}

func sortOrder(fields []indexquery.SortField) search.SortOrder {
	if len(fields) == 0 {
		return search.SortOrder{&search.SortField{Field: "id", Desc: true, Type: search.SortFieldAsNumber}}
	}
	order := make(search.SortOrder, 0, len(fields))
	for _, f := range fields {
		desc := f.Direction == indexquery.Desc
		if f.Field == indexquery.ScoreField {
			order = append(order, &search.SortScore{Desc: desc})
			continue
		}
		sf := &search.SortField{Field: f.Field, Desc: desc, Missing: search.SortFieldMissingLast}
		switch kindOf(f.Field) {
		case numericField:
			sf.Type = search.SortFieldAsNumber
		case dateField:
			sf.Type = search.SortFieldAsDate
		default:
			sf.Type = search.SortFieldAsString
		}
		order = append(order, sf)
	}
	return order
}

type scoredHit struct {
	id    int64
	score float64
}

func (b *BleveIndex) searchScored(ctx context.Context, doc *indexquery.Document, q blevequery.Query, page Page) (*Result, error) {
	fs := doc.FunctionScore
	req := bleve.NewSearchRequestOptions(q, scoreWindow, 0, false)
	req.SortBy([]string{"id"})
	if fs.ScriptScore != nil {
		req.Fields = []string{"score", "created_at"}
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	ids, err := hitIDs(res.Hits)
	if err != nil {
		return nil, err
	}

	hits := make([]scoredHit, len(ids))
	switch {
	case fs.RandomScore != nil:
		seed := time.Now().UnixNano()
		if fs.RandomScore.Seed != nil {
			seed = *fs.RandomScore.Seed
		}
		rng := rand.New(rand.NewSource(seed))
		for i, id := range ids {
			hits[i] = scoredHit{id: id, score: rng.Float64()}
		}
	case fs.ScriptScore != nil:
		for i, hit := range res.Hits {
			score, _ := toFloat(hit.Fields["score"])
			created, _ := hit.Fields["created_at"].(string)
			t, _ := time.Parse(time.RFC3339, created)
			hits[i] = scoredHit{id: ids[i], score: rankScore(score, t, fs.ScriptScore.Params)}
		}
	default:
		for i, id := range ids {
			hits[i] = scoredHit{id: id}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id > hits[j].id
	})

	b.logger.Debug("scored index search",
		zap.Uint64("total", res.Total),
		zap.Int("window", len(hits)),
		zap.Duration("duration", res.Took),
	)
	return &Result{IDs: pageOf(hits, page), Total: res.Total}, nil
}

func hitIDs(hits search.DocumentMatchCollection) ([]int64, error) {
	ids := make([]int64, len(hits))
	for i, hit := range hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad document id %q: %w", hit.ID, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func pageOf(hits []scoredHit, page Page) []int64 {
	start := min(page.Offset, len(hits))
	end := min(start+page.Limit, len(hits))
	ids := make([]int64, 0, end-start)
	for _, h := range hits[start:end] {
		ids = append(ids, h.id)
	}
	return ids
}

// rankScore mirrors the rank script: log3(score) plus a creation time bonus.
func rankScore(score float64, created time.Time, params map[string]any) float64 {
	log3, _ := toFloat(params["log3"])
	epoch, _ := toFloat(params["date2005_05_24"])
	if log3 == 0 {
		log3 = math.Log(3)
	}
	return math.Log(score)/log3 + (float64(created.Unix())-epoch)/35000
}
