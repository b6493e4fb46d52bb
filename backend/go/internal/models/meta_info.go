package models

import "time"

// MetaInfo 是附加在实体上的结构化元数据。
// 所有列表都保持插入顺序。
type MetaInfo struct {
	Titles       []string  `bson:"titles,omitempty" json:"titles,omitempty"`
	Comments     []string  `bson:"comments,omitempty" json:"comments,omitempty"`
	Descriptions []string  `bson:"descriptions,omitempty" json:"descriptions,omitempty"`
	HasSources   []string  `bson:"hasSources,omitempty" json:"hasSources,omitempty"`
	Creators     []string  `bson:"creators,omitempty" json:"creators,omitempty"`
	Date         time.Time `bson:"date,omitempty" json:"date,omitempty"`
}

// MetaInfoBuilder 以追加的方式构建 MetaInfo。
// Add* 方法只追加，Set* 方法才会显式替换。
type MetaInfoBuilder struct {
	meta MetaInfo
}

// NewMetaInfoBuilder 创建一个空的构建器。
func NewMetaInfoBuilder() *MetaInfoBuilder {
	return &MetaInfoBuilder{}
}

// MetaInfoBuilderFrom 以已有的元数据为起点创建构建器，不会修改传入的值。
func MetaInfoBuilderFrom(meta *MetaInfo) *MetaInfoBuilder {
	b := NewMetaInfoBuilder()
	if meta != nil {
		b.Merge(meta)
	}
	return b
}

func (b *MetaInfoBuilder) AddTitles(titles ...string) *MetaInfoBuilder {
	b.meta.Titles = append(b.meta.Titles, titles...)
	return b
}

func (b *MetaInfoBuilder) AddComments(comments ...string) *MetaInfoBuilder {
	b.meta.Comments = append(b.meta.Comments, comments...)
	return b
}

func (b *MetaInfoBuilder) AddDescriptions(descriptions ...string) *MetaInfoBuilder {
	b.meta.Descriptions = append(b.meta.Descriptions, descriptions...)
	return b
}

func (b *MetaInfoBuilder) AddSources(sources ...string) *MetaInfoBuilder {
	b.meta.HasSources = append(b.meta.HasSources, sources...)
	return b
}

func (b *MetaInfoBuilder) AddCreators(creators ...string) *MetaInfoBuilder {
	b.meta.Creators = append(b.meta.Creators, creators...)
	return b
}

// SetComments 显式替换评论列表。
func (b *MetaInfoBuilder) SetComments(comments ...string) *MetaInfoBuilder {
	b.meta.Comments = append([]string(nil), comments...)
	return b
}

// SetDescriptions 显式替换描述列表。
func (b *MetaInfoBuilder) SetDescriptions(descriptions ...string) *MetaInfoBuilder {
	b.meta.Descriptions = append([]string(nil), descriptions...)
	return b
}

// SetDate 设置创建时间。时间被转换为 UTC 并截断到毫秒，与 BSON 日期精度一致。
func (b *MetaInfoBuilder) SetDate(t time.Time) *MetaInfoBuilder {
	b.meta.Date = t.UTC().Truncate(time.Millisecond)
	return b
}

// SetCurrentDate 将创建时间设置为当前时间。
func (b *MetaInfoBuilder) SetCurrentDate() *MetaInfoBuilder {
	return b.SetDate(time.Now())
}

// Merge 把另一份元数据的所有列表追加到当前构建器中。日期只在当前为空时采用对方的值。
func (b *MetaInfoBuilder) Merge(other *MetaInfo) *MetaInfoBuilder {
	if other == nil {
		return b
	}
	b.AddTitles(other.Titles...)
	b.AddComments(other.Comments...)
	b.AddDescriptions(other.Descriptions...)
	b.AddSources(other.HasSources...)
	b.AddCreators(other.Creators...)
	if b.meta.Date.IsZero() && !other.Date.IsZero() {
		b.SetDate(other.Date)
	}
	return b
}

// Build 返回构建结果的独立副本。
func (b *MetaInfoBuilder) Build() *MetaInfo {
	out := MetaInfo{
		Titles:       cloneStrings(b.meta.Titles),
		Comments:     cloneStrings(b.meta.Comments),
		Descriptions: cloneStrings(b.meta.Descriptions),
		HasSources:   cloneStrings(b.meta.HasSources),
		Creators:     cloneStrings(b.meta.Creators),
		Date:         b.meta.Date,
	}
	return &out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
