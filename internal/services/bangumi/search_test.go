package bangumi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// searchServer fakes the v0 and legacy search endpoints
func searchServer(t *testing.T, v0Results []SearchSubject, legacyResults map[string][]SearchSubject) (*httptest.Server, *[]string) {
	t.Helper()
	var keywords []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/subjects"):
			var req struct {
				Keyword string `json:"keyword"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad search body: %v", err)
			}
			keywords = append(keywords, req.Keyword)
			json.NewEncoder(w).Encode(map[string]interface{}{"data": v0Results})

		case strings.HasPrefix(r.URL.Path, "/search/subject/"):
			title := strings.TrimPrefix(r.URL.Path, "/search/subject/")
			list, ok := legacyResults[title]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"results": len(list), "list": list})

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	return httptest.NewServer(handler), &keywords
}

func TestSearchSubjectIDWindowedHit(t *testing.T) {
	server, keywords := searchServer(t, []SearchSubject{
		{ID: 386809, Name: "【推しの子】", NameCN: "我推的孩子", Date: "2023-04-12"},
	}, nil)
	defer server.Close()

	client := newTestClient(t, server)
	id, err := client.SearchSubjectID(context.Background(), "我推的孩子", "【推しの子】", "2023-04-12", false)
	if err != nil {
		t.Fatalf("SearchSubjectID failed: %v", err)
	}
	if id != "386809" {
		t.Errorf("expected 386809, got %q", id)
	}
	if len(*keywords) == 0 || (*keywords)[0] != "【推しの子】" {
		t.Errorf("original title must be searched first, got %v", *keywords)
	}
}

func TestSearchSubjectIDLegacyFallback(t *testing.T) {
	// The windowed search returns an unrelated hit; the legacy endpoint has
	// the right subject
	server, _ := searchServer(t, []SearchSubject{
		{ID: 1, Name: "zzzzzzzzzzzz", NameCN: "zzzzzzzzzzzz"},
	}, map[string][]SearchSubject{
		"葬送的芙莉莲": {{ID: 400602, Name: "葬送のフリーレン", NameCN: "葬送的芙莉莲"}},
	})
	defer server.Close()

	client := newTestClient(t, server)
	id, err := client.SearchSubjectID(context.Background(), "葬送的芙莉莲", "", "2023-09-29", false)
	if err != nil {
		t.Fatalf("SearchSubjectID failed: %v", err)
	}
	if id != "400602" {
		t.Errorf("expected 400602, got %q", id)
	}
}

func TestSearchSubjectIDNoPremiereDate(t *testing.T) {
	// Without a premiere date the windowed search is skipped entirely
	server, keywords := searchServer(t, nil, map[string][]SearchSubject{
		"孤独摇滚": {{ID: 364450, Name: "ぼっち・ざ・ろっく!", NameCN: "孤独摇滚"}},
	})
	defer server.Close()

	client := newTestClient(t, server)
	id, err := client.SearchSubjectID(context.Background(), "孤独摇滚", "", "", false)
	if err != nil {
		t.Fatalf("SearchSubjectID failed: %v", err)
	}
	if id != "364450" {
		t.Errorf("expected 364450, got %q", id)
	}
	if len(*keywords) != 0 {
		t.Errorf("windowed search must not run without a date, got %v", *keywords)
	}
}

func TestSearchSubjectIDNothingFound(t *testing.T) {
	server, _ := searchServer(t, nil, map[string][]SearchSubject{})
	defer server.Close()

	client := newTestClient(t, server)
	id, err := client.SearchSubjectID(context.Background(), "不存在的作品", "", "2023-01-01", false)
	if err != nil {
		t.Fatalf("SearchSubjectID failed: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestTitleDiffRatio(t *testing.T) {
	hit := SearchSubject{Name: "葬送のフリーレン", NameCN: "葬送的芙莉莲"}

	if r := titleDiffRatio("葬送的芙莉莲", "葬送のフリーレン", hit); r < 1.0 {
		t.Errorf("expected perfect ratio, got %f", r)
	}
	if r := titleDiffRatio("完全不同的标题啊", "", hit); r >= acceptRatio {
		t.Errorf("unrelated titles must score below the accept ratio, got %f", r)
	}
}
