package panel

import (
	"github.com/hitoshi/toolvault/internal/model"
)

// Filters はパネルの4入力のうちリスト以外の3つを表す。
type Filters struct {
	SearchTerm    string
	Category      model.ToolFilter
	Subcategories []string
}

// Apply は全ツールリストにフィルタを適用し、導出リストを返す。
// 入力が変わるたびに常にフルリストから再計算する（差分更新は行わない）。
// 各段は独立した絞り込みであり、適用順序に依存しない。段の順序:
//  1. 検索語: ダイアクリティカル・大文字小文字を無視した部分一致
//     （name, detailが対象）
//  2. カテゴリ: popular → category == "populares" / free → price == 0 /
//     paid → price > 0 / all → 絞り込みなし
//  3. サブカテゴリ: 選択が空でなければメンバーシップ判定
//
// 入力リストは変更されない。
func Apply(tools []*model.Tool, filters Filters) []*model.Tool {
	result := make([]*model.Tool, 0, len(tools))

	normalizedTerm := Normalize(filters.SearchTerm)
	subcategories := make(map[string]bool, len(filters.Subcategories))
	for _, sub := range filters.Subcategories {
		subcategories[sub] = true
	}

	for _, tool := range tools {
		if !matchesSearch(tool, normalizedTerm) {
			continue
		}
		if !matchesCategory(tool, filters.Category) {
			continue
		}
		if len(subcategories) > 0 && !subcategories[tool.Subcategory] {
			continue
		}
		result = append(result, tool)
	}

	return result
}

// matchesSearch は検索語によるツールの一致を判定する。
func matchesSearch(tool *model.Tool, normalizedTerm string) bool {
	if normalizedTerm == "" {
		return true
	}
	return matches(normalizedTerm, tool.Name) || matches(normalizedTerm, tool.Detail)
}

// matchesCategory はカテゴリフィルタによるツールの一致を判定する。
func matchesCategory(tool *model.Tool, filter model.ToolFilter) bool {
	switch filter {
	case model.ToolFilterPopular:
		return tool.Category == model.CategoryPopular
	case model.ToolFilterFree:
		return tool.Price == 0
	case model.ToolFilterPaid:
		return tool.Price > 0
	default:
		// all または未指定は絞り込みなし
		return true
	}
}
