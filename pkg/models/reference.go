package models

// ReferenceOdds is the reference book's view of one event.
// Source prices are decimal odds as delivered by the feed; the NVP* and American*
// fields are filled in by normalization and never replace the source fields.
type ReferenceOdds struct {
	EventID    string             `json:"event_id,omitempty"`
	Home       string             `json:"home,omitempty"`
	Away       string             `json:"away,omitempty"`
	LeagueName string             `json:"league_name,omitempty"`
	Periods    map[string]*Period `json:"periods"`
}

// Period holds the markets offered for one period of a game ("num_0" is the full game)
type Period struct {
	MoneyLine *MoneyLine              `json:"money_line,omitempty"`
	Spreads   map[string]*SpreadPrice `json:"spreads,omitempty"`
	Totals    map[string]*TotalPrice  `json:"totals,omitempty"`
}

// MoneyLine represents a two or three way moneyline
type MoneyLine struct {
	Home *float64 `json:"home,omitempty"`
	Draw *float64 `json:"draw,omitempty"`
	Away *float64 `json:"away,omitempty"`

	NVPHome *float64 `json:"nvp_home,omitempty"`
	NVPDraw *float64 `json:"nvp_draw,omitempty"`
	NVPAway *float64 `json:"nvp_away,omitempty"`

	AmericanHome    string `json:"american_home,omitempty"`
	AmericanDraw    string `json:"american_draw,omitempty"`
	AmericanAway    string `json:"american_away,omitempty"`
	NVPAmericanHome string `json:"nvp_american_home,omitempty"`
	NVPAmericanDraw string `json:"nvp_american_draw,omitempty"`
	NVPAmericanAway string `json:"nvp_american_away,omitempty"`
}

// SpreadPrice represents one handicap line. HDP is quoted from the home side.
type SpreadPrice struct {
	HDP  *float64 `json:"hdp"`
	Home *float64 `json:"home,omitempty"`
	Away *float64 `json:"away,omitempty"`

	NVPHome *float64 `json:"nvp_home,omitempty"`
	NVPAway *float64 `json:"nvp_away,omitempty"`

	AmericanHome    string `json:"american_home,omitempty"`
	AmericanAway    string `json:"american_away,omitempty"`
	NVPAmericanHome string `json:"nvp_american_home,omitempty"`
	NVPAmericanAway string `json:"nvp_american_away,omitempty"`
}

// TotalPrice represents one game total line
type TotalPrice struct {
	Points *float64 `json:"points"`
	Over   *float64 `json:"over,omitempty"`
	Under  *float64 `json:"under,omitempty"`

	NVPOver  *float64 `json:"nvp_over,omitempty"`
	NVPUnder *float64 `json:"nvp_under,omitempty"`

	AmericanOver     string `json:"american_over,omitempty"`
	AmericanUnder    string `json:"american_under,omitempty"`
	NVPAmericanOver  string `json:"nvp_american_over,omitempty"`
	NVPAmericanUnder string `json:"nvp_american_under,omitempty"`
}

// FullGame returns the full-game period, trying "num_0" then "0"
func (r *ReferenceOdds) FullGame() *Period {
	if r == nil || r.Periods == nil {
		return nil
	}
	if p, ok := r.Periods["num_0"]; ok && p != nil {
		return p
	}
	return r.Periods["0"]
}

// Clone returns a deep copy
func (r *ReferenceOdds) Clone() *ReferenceOdds {
	if r == nil {
		return nil
	}
	out := *r
	if r.Periods != nil {
		out.Periods = make(map[string]*Period, len(r.Periods))
		for k, p := range r.Periods {
			out.Periods[k] = p.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy
func (p *Period) Clone() *Period {
	if p == nil {
		return nil
	}
	out := &Period{}
	if p.MoneyLine != nil {
		ml := *p.MoneyLine
		ml.Home, ml.Draw, ml.Away = cloneFloat(ml.Home), cloneFloat(ml.Draw), cloneFloat(ml.Away)
		ml.NVPHome, ml.NVPDraw, ml.NVPAway = cloneFloat(ml.NVPHome), cloneFloat(ml.NVPDraw), cloneFloat(ml.NVPAway)
		out.MoneyLine = &ml
	}
	if p.Spreads != nil {
		out.Spreads = make(map[string]*SpreadPrice, len(p.Spreads))
		for k, s := range p.Spreads {
			if s == nil {
				continue
			}
			cp := *s
			cp.HDP, cp.Home, cp.Away = cloneFloat(s.HDP), cloneFloat(s.Home), cloneFloat(s.Away)
			cp.NVPHome, cp.NVPAway = cloneFloat(s.NVPHome), cloneFloat(s.NVPAway)
			out.Spreads[k] = &cp
		}
	}
	if p.Totals != nil {
		out.Totals = make(map[string]*TotalPrice, len(p.Totals))
		for k, t := range p.Totals {
			if t == nil {
				continue
			}
			cp := *t
			cp.Points, cp.Over, cp.Under = cloneFloat(t.Points), cloneFloat(t.Over), cloneFloat(t.Under)
			cp.NVPOver, cp.NVPUnder = cloneFloat(t.NVPOver), cloneFloat(t.NVPUnder)
			out.Totals[k] = &cp
		}
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
