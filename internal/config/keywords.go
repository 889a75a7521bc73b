package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordConfig holds the curated keyword sets the classifier matches
// activities against, one list per category.
type KeywordConfig struct {
	Production  []string `yaml:"production"`
	Investment  []string `yaml:"investment"`
	Expenditure []string `yaml:"expenditure"`
}

// DefaultKeywords returns the built-in keyword sets used when no keywords
// file is configured.
func DefaultKeywords() *KeywordConfig {
	return &KeywordConfig{
		Production: []string{
			"编程", "工作", "开发", "写作", "学习", "写代码", "设计", "开会",
			"coding", "programming", "work", "writing", "development", "study", "meeting",
		},
		Investment: []string{
			"阅读", "读书", "课程", "研究", "复盘", "锻炼", "运动", "健身",
			"reading", "course", "research", "review", "exercise", "workout",
		},
		Expenditure: []string{
			"娱乐", "游戏", "休息", "刷手机", "购物", "聊天", "吃饭", "通勤",
			"entertainment", "gaming", "rest", "shopping", "commute",
		},
	}
}

// LoadKeywords reads the keyword sets from a YAML file. A missing file is not
// an error; the defaults apply.
func LoadKeywords(path string) (*KeywordConfig, error) {
	if path == "" {
		return DefaultKeywords(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultKeywords(), nil
		}
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	var kw KeywordConfig
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return nil, fmt.Errorf("failed to parse keywords YAML: %w", err)
	}

	// Partial files keep the defaults for the missing lists.
	def := DefaultKeywords()
	if len(kw.Production) == 0 {
		kw.Production = def.Production
	}
	if len(kw.Investment) == 0 {
		kw.Investment = def.Investment
	}
	if len(kw.Expenditure) == 0 {
		kw.Expenditure = def.Expenditure
	}
	return &kw, nil
}
