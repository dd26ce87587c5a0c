package bangumi

import (
	"context"
	"testing"
)

// fakeCatalog is an in-memory catalogBrowser for traversal tests
type fakeCatalog struct {
	subjects map[string]*Subject
	related  map[string][]RelatedSubject
	episodes map[string]*Episodes
	calls    int
}

func (f *fakeCatalog) GetSubject(ctx context.Context, subjectID string) (*Subject, error) {
	f.calls++
	return f.subjects[subjectID], nil
}

func (f *fakeCatalog) GetRelatedSubjects(ctx context.Context, subjectID string) ([]RelatedSubject, error) {
	f.calls++
	return f.related[subjectID], nil
}

func (f *fakeCatalog) GetEpisodes(ctx context.Context, subjectID string, epType int) (*Episodes, error) {
	f.calls++
	if eps, ok := f.episodes[subjectID]; ok {
		return eps, nil
	}
	return &Episodes{}, nil
}

// episodeRun builds n episodes with consecutive ids, sorts and eps
func episodeRun(startID int, startSort, startEp float64, n int) *Episodes {
	eps := make([]Episode, n)
	for i := 0; i < n; i++ {
		eps[i] = Episode{
			ID:   startID + i,
			Sort: startSort + float64(i),
			Ep:   startEp + float64(i),
		}
	}
	return &Episodes{Data: eps, Total: n}
}

func TestResolveOutOfBounds(t *testing.T) {
	tests := []struct {
		name    string
		season  int
		episode int
	}{
		{"season too high", 6, 1},
		{"episode too high", 1, 100},
		{"episode zero", 1, 0},
		{"episode negative", 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &fakeCatalog{}
			resolver := NewResolver(catalog, testLogger())

			subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", tt.season, tt.episode, false)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if subjectID != "" || episodeID != "" {
				t.Errorf("expected empty result, got (%q, %q)", subjectID, episodeID)
			}
			if catalog.calls != 0 {
				t.Errorf("out-of-bounds input must not reach the catalog, got %d calls", catalog.calls)
			}
		})
	}
}

func TestResolveSeasonSpecificDirect(t *testing.T) {
	catalog := &fakeCatalog{
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 3, true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "10" || episodeID != "1002" {
		t.Errorf("expected (10, 1002), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveFirstSeasonOnStartSubject(t *testing.T) {
	catalog := &fakeCatalog{
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 1, 5, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "10" || episodeID != "1004" {
		t.Errorf("expected (10, 1004), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveFirstSeasonContinuousNumberingCour(t *testing.T) {
	// The second cour keeps absolute numbering (sort 13..24), so episode 13
	// of "season 1" lives on the sequel subject
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"20": {ID: 20, Platform: "TV"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 20, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"20": episodeRun(2000, 13, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 1, 13, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "20" || episodeID != "2000" {
		t.Errorf("expected (20, 2000), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveFirstSeasonStopsAtNextSeason(t *testing.T) {
	// The sequel restarts numbering at 1, so it is season 2 and the requested
	// episode 13 of season 1 does not exist
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"20": {ID: 20, Platform: "TV"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 20, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"20": episodeRun(2000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 1, 13, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "" || episodeID != "" {
		t.Errorf("expected no match, got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveLaterSeasonRestartNumbering(t *testing.T) {
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"20": {ID: 20, Platform: "TV"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 20, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"20": episodeRun(2000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 3, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "20" || episodeID != "2002" {
		t.Errorf("expected (20, 2002), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveLaterSeasonContinuousNumbering(t *testing.T) {
	// Season 2 keeps absolute sort numbers but in-season ep numbers restart,
	// so episode 3 matches by ep, not by sort
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"20": {ID: 20, Platform: "TV", NameCN: "某作品 第二季"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 20, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"20": episodeRun(2000, 13, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 3, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "20" || episodeID != "2002" {
		t.Errorf("expected (20, 2002), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveLaterSeasonSkipsNonTV(t *testing.T) {
	// An OVA sits between season 1 and season 2 on the sequel chain
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"15": {ID: 15, Platform: "OVA"},
			"20": {ID: 20, Platform: "TV"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 15, Relation: "续集"}},
			"15": {{ID: 20, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"15": episodeRun(1500, 1, 1, 2),
			"20": episodeRun(2000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 1, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "20" || episodeID != "2000" {
		t.Errorf("expected (20, 2000), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveLaterSeasonSplitCourNotCounted(t *testing.T) {
	// A "part 2" continuation is the same season, so season 2 is one hop
	// further down the chain
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"20": {ID: 20, Platform: "TV", NameCN: "某作品 第2部分"},
			"30": {ID: 30, Platform: "TV"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 20, Relation: "续集"}},
			"20": {{ID: 30, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
			"20": episodeRun(2000, 13, 1, 12),
			"30": episodeRun(3000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 4, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "30" || episodeID != "3003" {
		t.Errorf("expected (30, 3003), got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveNoSequel(t *testing.T) {
	catalog := &fakeCatalog{
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 1, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "" || episodeID != "" {
		t.Errorf("expected no match, got (%q, %q)", subjectID, episodeID)
	}
}

func TestResolveSequelCycleTerminates(t *testing.T) {
	// Two OVAs pointing at each other must not loop forever
	catalog := &fakeCatalog{
		subjects: map[string]*Subject{
			"15": {ID: 15, Platform: "OVA"},
			"16": {ID: 16, Platform: "OVA"},
		},
		related: map[string][]RelatedSubject{
			"10": {{ID: 15, Relation: "续集"}},
			"15": {{ID: 16, Relation: "续集"}},
			"16": {{ID: 15, Relation: "续集"}},
		},
		episodes: map[string]*Episodes{
			"10": episodeRun(1000, 1, 1, 12),
		},
	}
	resolver := NewResolver(catalog, testLogger())

	subjectID, episodeID, err := resolver.Resolve(context.Background(), "10", 2, 1, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if subjectID != "" || episodeID != "" {
		t.Errorf("expected no match, got (%q, %q)", subjectID, episodeID)
	}
}

func TestFindByEpRespectsSortBound(t *testing.T) {
	// An ep number running ahead of sort means renumbered specials, not a
	// regular episode
	episodes := []Episode{
		{ID: 1, Sort: 0.5, Ep: 1},
		{ID: 2, Sort: 2, Ep: 2},
	}
	if ep := findByEp(episodes, 1); ep != nil {
		t.Errorf("expected no match when ep > sort, got %+v", ep)
	}
	if ep := findByEp(episodes, 2); ep == nil || ep.ID != 2 {
		t.Errorf("expected episode 2, got %+v", ep)
	}
}
