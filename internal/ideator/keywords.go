package ideator

// NeedRule attaches an unmet need and a competitive gap to any opportunity
// whose text, or the research challenges, mention one of Keywords.
type NeedRule struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Need     string   `yaml:"need" json:"need"`
	Gap      string   `yaml:"gap" json:"gap"`
}

// LevelRule maps keywords to a value; earlier rules win.
type LevelRule[T ~string] struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Value    T        `yaml:"value" json:"value"`
}

// KeywordTables holds every substring heuristic used by context extraction.
// Matching is case-insensitive and anchored at a word start; keywords shorter
// than four letters must also end on a word boundary.
type KeywordTables struct {
	Growth       []string               `yaml:"growth" json:"growth"`
	Challenge    []string               `yaml:"challenge" json:"challenge"`
	Needs        []NeedRule             `yaml:"needs" json:"needs"`
	FallbackNeed string                 `yaml:"fallback_need" json:"fallbackNeed"`
	Severity     []LevelRule[Level]     `yaml:"severity" json:"severity"`
	Frequency    []LevelRule[Frequency] `yaml:"frequency" json:"frequency"`
	Solutions    []NeedRule             `yaml:"solutions" json:"solutions"`
	Competitor   []string               `yaml:"competitor" json:"competitor"`
}

func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		Growth:    []string{"growth", "growing", "grow", "increase", "increasing", "expand", "rising", "surge", "trend", "cagr", "成長", "拡大", "増加"},
		Challenge: []string{"challenge", "problem", "issue", "difficult", "struggle", "shortage", "lack", "barrier", "課題", "問題", "不足"},
		Needs: []NeedRule{
			{
				Keywords: []string{"shortage", "absent", "lack", "missing", "insufficient", "scarce", "不足", "不在"},
				Need:     "Reliable supply of the capability the market currently lacks",
				Gap:      "No established provider covers the shortage",
			},
			{
				Keywords: []string{"small business", "small and medium", "smb", "sme", "中小企業"},
				Need:     "Affordable offering sized for small and medium businesses",
				Gap:      "Incumbents focus on enterprise customers",
			},
			{
				Keywords: []string{"simple", "easy", "ai", "automation", "automate", "簡単", "自動化"},
				Need:     "Simple, automated workflow that removes manual effort",
				Gap:      "Existing tools are complex and largely manual",
			},
		},
		FallbackNeed: "Underserved need identified in the market research",
		Severity: []LevelRule[Level]{
			{Keywords: []string{"critical", "severe", "serious", "urgent", "major", "significant", "shortage", "深刻", "重大"}, Value: LevelHigh},
			{Keywords: []string{"minor", "slight", "small inconvenience", "marginal", "軽微"}, Value: LevelLow},
		},
		Frequency: []LevelRule[Frequency]{
			{Keywords: []string{"daily", "every day", "constantly", "always", "毎日"}, Value: FrequencyDaily},
			{Keywords: []string{"frequent", "often", "regularly", "recurring", "頻繁"}, Value: FrequencyFrequent},
			{Keywords: []string{"rare", "seldom", "infrequent", "稀"}, Value: FrequencyRare},
		},
		Solutions: []NeedRule{
			{Keywords: []string{"manual", "spreadsheet", "excel", "paper", "手作業"}, Need: "Manual processes and spreadsheets", Gap: "Error-prone and does not scale"},
			{Keywords: []string{"cost", "expensive", "price", "コスト"}, Need: "Expensive specialist services", Gap: "Cost puts it out of reach for most customers"},
			{Keywords: []string{"time", "slow", "delay", "時間"}, Need: "Slow legacy workflows", Gap: "Takes too long to deliver results"},
		},
		Competitor: []string{"competitor", "competition", "rival"},
	}
}
