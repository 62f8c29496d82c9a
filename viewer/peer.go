package viewer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchLeaderboard scrapes another viewer's leaderboard page. Rows that
// peer itself fetched from elsewhere are skipped, so peers never echo each
// other's rows back.
func FetchLeaderboard(ctx context.Context, client *http.Client, peer string) ([]SessionSummary, error) {
	peer = strings.TrimRight(peer, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "snek-viewer/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []SessionSummary
	seen := make(map[string]bool)
	doc.Find("#leaderboard tr.session").Each(func(i int, s *goquery.Selection) {
		if s.HasClass("peer") {
			return
		}
		id, ok := s.Attr("data-session")
		if !ok || id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, SessionSummary{
			SessionID:  id,
			Source:     s.AttrOr("data-source", ""),
			Difficulty: s.AttrOr("data-difficulty", ""),
			Width:      int32(attrInt(s, "data-width")),
			Height:     int32(attrInt(s, "data-height")),
			Wrap:       s.AttrOr("data-wrap", "") == "true",
			Ticks:      attrInt(s, "data-ticks"),
			Score:      int32(attrInt(s, "data-score")),
			Level:      int32(attrInt(s, "data-level")),
			Cause:      s.AttrOr("data-cause", ""),
			Peer:       peer,
		})
	})
	return out, nil
}

func attrInt(s *goquery.Selection, name string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s.AttrOr(name, "")), 10, 64)
	return n
}
