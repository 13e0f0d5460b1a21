package graph

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
)

type fakeRetriever struct {
	sources []common.Source
	err     error
	count   int
}

func (f *fakeRetriever) Search(_ context.Context, _ string, count int) ([]common.Source, error) {
	f.count = count
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sources) > count {
		return f.sources[:count], nil
	}
	return f.sources, nil
}

type fakeAnswers struct {
	answer *common.Answer
	err    error
	seen   []common.Source
}

func (f *fakeAnswers) GenerateAnswer(_ context.Context, _ string, sources []common.Source) (*common.Answer, error) {
	f.seen = sources
	return f.answer, f.err
}

type fakeExtractor struct {
	mu      sync.Mutex
	bySrc   map[string][]common.RawConcept
	errs    map[string]error
	calls   []string
	counts  []int
	fallback func(source common.Source, count int) []common.RawConcept
}

func (f *fakeExtractor) ExtractConcepts(_ context.Context, source common.Source, count int) ([]common.RawConcept, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source.ID)
	f.counts = append(f.counts, count)
	f.mu.Unlock()

	if err := f.errs[source.ID]; err != nil {
		return nil, err
	}
	if raw, ok := f.bySrc[source.ID]; ok {
		return raw, nil
	}
	if f.fallback != nil {
		return f.fallback(source, count), nil
	}
	return nil, nil
}

// topicEmbedder maps text onto a small topic space so similarity is
// predictable. Texts containing a word from fail produce an error.
type topicEmbedder struct {
	mu    sync.Mutex
	fail  []string
	calls int
	err   error
}

var topics = []string{"goroutine", "channel", "memory", "scheduler", "garbage"}

func (e *topicEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	text := strings.ToLower(string(input))
	for _, f := range e.fail {
		if strings.Contains(text, f) {
			return nil, errors.New("embedding backend unavailable")
		}
	}
	vec := make([]float32, len(topics)+1)
	vec[0] = 0.2
	for i, t := range topics {
		vec[i+1] = float32(strings.Count(text, t))
	}
	return vec, nil
}

type fakeReasoner struct {
	res *common.Reasoning
	err error
}

func (f *fakeReasoner) ExpandReasoning(_ context.Context, _ string, _ string) (*common.Reasoning, error) {
	return f.res, f.err
}

func rawConcept(title, text string, importance any) common.RawConcept {
	r := common.RawConcept{"title": title, "text": text}
	if importance != nil {
		r["importance"] = importance
	}
	return r
}
