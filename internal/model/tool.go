// Package model はドメインモデルを定義する。
package model

import "time"

const (
	// MaxToolProperties は1ツールに登録できる特徴の最大数。
	MaxToolProperties = 6
	// MaxToolImages は1ツールに登録できる画像の最大数。
	MaxToolImages = 3
)

// CategoryPopular は「人気」フィルタが一致させるカテゴリ値。
// カタログデータ側の既存値に合わせている。
const CategoryPopular = "populares"

// Tool はカタログに登録されたツールを表す。
// LogoPathとImagePathsはオブジェクトストア上のパスキーであり、
// アップロード完了前のパスを参照するレコードを書き込んではならない。
type Tool struct {
	ID          string
	Name        string
	Description string
	Detail      string
	DevelopedBy string
	Price       float64
	Category    string
	Subcategory string
	Properties  []string
	LogoPath    string
	ImagePaths  []string
	VideoURL    string
	Favorite    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToolFilter はツール一覧のカテゴリフィルタ種別を表す。
type ToolFilter string

const (
	// ToolFilterAll は全ツールを表示するフィルタ。
	ToolFilterAll ToolFilter = "all"
	// ToolFilterPopular はカテゴリが人気（populares）のツールのみを表示するフィルタ。
	ToolFilterPopular ToolFilter = "popular"
	// ToolFilterFree は価格が0のツールのみを表示するフィルタ。
	ToolFilterFree ToolFilter = "free"
	// ToolFilterPaid は価格が0より大きいツールのみを表示するフィルタ。
	ToolFilterPaid ToolFilter = "paid"
)

// IsValidToolFilter はフィルタ種別が有効かどうかを判定する。
func IsValidToolFilter(f ToolFilter) bool {
	switch f {
	case ToolFilterAll, ToolFilterPopular, ToolFilterFree, ToolFilterPaid:
		return true
	}
	return false
}

// AssetKind はアップロードされるアセットの種別を表す。
// 種別ごとにオブジェクトストア上のパスプレフィックスが決まる。
type AssetKind string

const (
	// AssetKindLogo はツールのロゴ画像。logos/配下に保存される。
	AssetKindLogo AssetKind = "logo"
	// AssetKindImage はツールのスクリーンショット画像。images/tools/配下に保存される。
	AssetKindImage AssetKind = "image"
)

// PathPrefix はアセット種別に対応するオブジェクトストア上のプレフィックスを返す。
// 未知の種別には空文字を返す。
func (k AssetKind) PathPrefix() string {
	switch k {
	case AssetKindLogo:
		return "logos/"
	case AssetKindImage:
		return "images/tools/"
	}
	return ""
}
