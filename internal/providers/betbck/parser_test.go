package betbck_test

import (
	"errors"
	"testing"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/providers/betbck"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const searchBody = `{
	"games": [
		{
			"local_team": "Lakers 1H",
			"visitor_team": "Celtics 1H",
			"local_moneyline": "-300"
		},
		{
			"local_team": "Boston Celtics",
			"visitor_team": "Los Angeles Lakers",
			"local_moneyline": "-120",
			"visitor_moneyline": "+100",
			"local_spreads": [{"line": -1.5, "odds": "-110"}],
			"visitor_spreads": [{"line": 1.5, "odds": "-110"}],
			"total_line": "220½",
			"total_over": "-105",
			"total_under": "-115"
		},
		{
			"local_team": "Arsenal FC",
			"visitor_team": "Chelsea",
			"local_moneyline": "+140",
			"visitor_moneyline": "+190",
			"draw_moneyline": "+230"
		},
		{
			"local_team": "Shrewsbury Town",
			"visitor_team": "Wigan Athletic",
			"local_moneyline": "+150",
			"visitor_moneyline": "+170",
			"draw_moneyline": "+220"
		}
	]
}`

func TestJSONParser_Parse(t *testing.T) {
	p := betbck.NewJSONParser()

	tests := []struct {
		name          string
		home          string
		away          string
		found         bool
		wantHome      string
		wantHomeML    string
		wantHomeLine  float64
		wantDrawML    string
	}{
		{
			name:         "flipped listing",
			home:         "Los Angeles Lakers",
			away:         "Boston Celtics",
			found:        true,
			wantHome:     "Los Angeles Lakers",
			wantHomeML:   "+100",
			wantHomeLine: 1.5,
		},
		{
			name:         "direct listing",
			home:         "Boston Celtics",
			away:         "Los Angeles Lakers",
			found:        true,
			wantHome:     "Boston Celtics",
			wantHomeML:   "-120",
			wantHomeLine: -1.5,
		},
		{
			name:       "partial names",
			home:       "Arsenal",
			away:       "Chelsea FC",
			found:      true,
			wantHome:   "Arsenal FC",
			wantHomeML: "+140",
			wantDrawML: "+230",
		},
		{
			name:       "name containing a prop marker",
			home:       "Shrewsbury Town",
			away:       "Wigan Athletic",
			found:      true,
			wantHome:   "Shrewsbury Town",
			wantHomeML: "+150",
			wantDrawML: "+220",
		},
		{
			name:  "no match",
			home:  "Miami Heat",
			away:  "Denver Nuggets",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := p.Parse([]byte(searchBody), tt.home, tt.away)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if outcome.Found != tt.found {
				t.Fatalf("Expected found=%v, got %v", tt.found, outcome.Found)
			}
			if !tt.found {
				if outcome.Game != nil {
					t.Error("Expected no game for a miss")
				}
				return
			}

			g := outcome.Game
			if g.HomeTeam != tt.wantHome {
				t.Errorf("Expected home %q, got %q", tt.wantHome, g.HomeTeam)
			}
			if g.HomeMoneyline != tt.wantHomeML {
				t.Errorf("Expected home moneyline %q, got %q", tt.wantHomeML, g.HomeMoneyline)
			}
			if g.DrawMoneyline != tt.wantDrawML {
				t.Errorf("Expected draw moneyline %q, got %q", tt.wantDrawML, g.DrawMoneyline)
			}
			if tt.wantHomeLine != 0 {
				if len(g.HomeSpreads) != 1 || g.HomeSpreads[0].Line != tt.wantHomeLine {
					t.Errorf("Expected home spread %.1f, got %+v", tt.wantHomeLine, g.HomeSpreads)
				}
			}
		})
	}
}

func TestJSONParser_PartialGamesIgnored(t *testing.T) {
	body := `{"games": [{"local_team": "Lakers 1H", "visitor_team": "Celtics 1H", "local_moneyline": "-300"}]}`

	outcome, err := betbck.NewJSONParser().Parse([]byte(body), "Lakers", "Celtics")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if outcome.Found {
		t.Error("Expected first-half listing to be ignored")
	}
}

func TestJSONParser_Malformed(t *testing.T) {
	_, err := betbck.NewJSONParser().Parse([]byte("<html>blocked</html>"), "A", "B")
	if !errors.Is(err, models.ErrMalformedUpstreamData) {
		t.Errorf("Expected malformed data error, got %v", err)
	}
}
