package services

import (
	"testing"

	"timeagent/internal/config"
	"timeagent/internal/models"
)

func newTestClassifier() *ClassifierService {
	return NewClassifierService(config.DefaultKeywords())
}

func TestClassify_KeywordSets(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		activity string
		want     models.Category
	}{
		{"编程", models.CategoryProduction},
		{"写代码", models.CategoryProduction},
		{"meeting", models.CategoryProduction},
		{"阅读", models.CategoryInvestment},
		{"健身", models.CategoryInvestment},
		{"游戏", models.CategoryExpenditure},
		{"刷手机", models.CategoryExpenditure},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.activity, "", ""); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.activity, got, tt.want)
		}
	}
}

func TestClassify_UnknownDefaultsToExpenditure(t *testing.T) {
	c := newTestClassifier()

	if got := c.Classify("发呆", "", ""); got != models.CategoryExpenditure {
		t.Errorf("Classify(发呆) = %q, want 支出", got)
	}
}

func TestClassify_ExplicitKeywordWins(t *testing.T) {
	c := newTestClassifier()

	// 游戏 alone is Expenditure; the explicit 投资类 tag overrides it.
	if got := c.Classify("游戏", "这算投资类，是电竞训练", ""); got != models.CategoryInvestment {
		t.Errorf("explicit tag ignored, got %q", got)
	}
}

func TestClassify_ExplicitExpenditureOverridesKeywords(t *testing.T) {
	c := newTestClassifier()

	// 编程 is a Production keyword; the explicit 支出 marker wins anyway.
	if got := c.Classify("编程", "这段时间记为支出", ""); got != models.CategoryExpenditure {
		t.Errorf("explicit 支出 ignored, got %q", got)
	}
}

func TestClassify_HistoryHintBeatsKeywords(t *testing.T) {
	c := newTestClassifier()

	// The goal's history says Investment even though 编程 is a Production keyword.
	if got := c.Classify("编程", "", models.CategoryInvestment); got != models.CategoryInvestment {
		t.Errorf("history hint ignored, got %q", got)
	}
}

func TestClassify_InvalidHintIgnored(t *testing.T) {
	c := newTestClassifier()

	if got := c.Classify("编程", "", models.Category("随便")); got != models.CategoryProduction {
		t.Errorf("invalid hint should fall through to keywords, got %q", got)
	}
}

func TestActivityLabel(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		phrase string
		want   string
	}{
		{"学习编程", "编程"}, // first keyword in set order
		{"去健身房锻炼", "锻炼"},
		{"玩了一会游戏", "游戏"},
		{"发呆", "发呆"}, // no keyword, phrase stands
	}
	for _, tt := range tests {
		if got := c.ActivityLabel(tt.phrase); got != tt.want {
			t.Errorf("ActivityLabel(%q) = %q, want %q", tt.phrase, got, tt.want)
		}
	}
}

func TestActivityLabel_CapsLongPhrases(t *testing.T) {
	c := newTestClassifier()

	long := "这是一段特别长并且不包含任何已知关键词的活动描述文本应当被截断到一个合理的长度"
	got := c.ActivityLabel(long)
	if len([]rune(got)) > 24 {
		t.Errorf("label %q longer than 24 runes", got)
	}
}

func TestReload_SwapsKeywords(t *testing.T) {
	c := newTestClassifier()

	c.Reload(&config.KeywordConfig{
		Production:  []string{"farming"},
		Investment:  []string{"languages"},
		Expenditure: []string{"tv"},
	})

	if got := c.Classify("farming", "", ""); got != models.CategoryProduction {
		t.Errorf("reloaded keyword not used, got %q", got)
	}
	// Old keyword set must be gone.
	if got := c.Classify("编程", "", ""); got != models.CategoryExpenditure {
		t.Errorf("stale keyword survived reload, got %q", got)
	}
}
