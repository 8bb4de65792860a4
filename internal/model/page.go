package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// PageType represents a classified drawing page category.
type PageType string

const (
	PageTypeCover    PageType = "cover"
	PageTypeIndex    PageType = "index"
	PageTypePlan     PageType = "plan"
	PageTypeSchedule PageType = "schedule"
	PageTypeDetail   PageType = "detail"
	PageTypeSpec     PageType = "specification"
	PageTypeLegend   PageType = "legend"
	PageTypeOther    PageType = "other"
)

// AllPageTypes returns all defined page types.
func AllPageTypes() []PageType {
	return []PageType{
		PageTypeCover,
		PageTypeIndex,
		PageTypePlan,
		PageTypeSchedule,
		PageTypeDetail,
		PageTypeSpec,
		PageTypeLegend,
		PageTypeOther,
	}
}

// IsGeneralPageType returns true for page types that apply to every trade
// and are duplicated into every batch (cover sheets, drawing indexes).
func IsGeneralPageType(pt PageType) bool {
	return pt == PageTypeCover || pt == PageTypeIndex
}

// TradeGeneral is the pseudo-trade assigned to cover/index pages by the
// upstream classifier.
const TradeGeneral = "General"

// Page is one rasterized, classified drawing page. Immutable once classified.
type Page struct {
	PageNumber      int      `json:"page_number"` // 1-based, unique within a document
	SheetNumber     string   `json:"sheet_number,omitempty"`
	Trade           string   `json:"trade"`
	CSIDivision     string   `json:"csi_division,omitempty"`
	PageType        PageType `json:"page_type"`
	EstimatedTokens int      `json:"estimated_tokens"`
	Content         string   `json:"content"`
}

// IsGeneral reports whether the page belongs in every batch regardless of trade.
func (p Page) IsGeneral() bool {
	return p.Trade == TradeGeneral || IsGeneralPageType(p.PageType)
}

// DocumentSummary describes a classified document at a glance.
type DocumentSummary struct {
	PageCount      int            `json:"page_count"`
	Trades         []string       `json:"trades"`
	Divisions      []string       `json:"divisions"`
	PagesByTrade   map[string]int `json:"pages_by_trade"`
	EstimatedTotal int            `json:"estimated_total_tokens"`
}

// ClassifiedDocument is the full classified page set plus derived indexes.
// Built once per source document set and read-only afterward.
type ClassifiedDocument struct {
	pages      []Page
	byTrade    map[string][]Page
	byDivision map[string][]Page
}

// NewClassifiedDocument builds a document from classified pages. Pages are
// sorted by page number; the derived indexes preserve that order.
func NewClassifiedDocument(pages []Page) *ClassifiedDocument {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PageNumber < sorted[j].PageNumber
	})

	doc := &ClassifiedDocument{
		pages:      sorted,
		byTrade:    make(map[string][]Page),
		byDivision: make(map[string][]Page),
	}
	for _, p := range sorted {
		doc.byTrade[p.Trade] = append(doc.byTrade[p.Trade], p)
		if p.CSIDivision != "" {
			doc.byDivision[p.CSIDivision] = append(doc.byDivision[p.CSIDivision], p)
		}
	}
	return doc
}

// Pages returns all pages in page-number order.
func (d *ClassifiedDocument) Pages() []Page {
	return d.pages
}

// PageCount returns the number of pages.
func (d *ClassifiedDocument) PageCount() int {
	return len(d.pages)
}

// PagesByTrade returns the pages classified under the given trade, in
// page-number order. Unknown trades return nil.
func (d *ClassifiedDocument) PagesByTrade(trade string) []Page {
	return d.byTrade[trade]
}

// PagesByDivision returns the pages under the given CSI division.
func (d *ClassifiedDocument) PagesByDivision(division string) []Page {
	return d.byDivision[division]
}

// Trades returns all trades present, sorted alphabetically, excluding the
// General pseudo-trade.
func (d *ClassifiedDocument) Trades() []string {
	var trades []string
	for trade := range d.byTrade {
		if trade != TradeGeneral {
			trades = append(trades, trade)
		}
	}
	sort.Strings(trades)
	return trades
}

// Summary returns aggregate counts for display and planning.
func (d *ClassifiedDocument) Summary() DocumentSummary {
	s := DocumentSummary{
		PageCount:    len(d.pages),
		PagesByTrade: make(map[string]int),
	}
	for trade, pages := range d.byTrade {
		s.PagesByTrade[trade] = len(pages)
	}
	s.Trades = d.Trades()
	for division := range d.byDivision {
		s.Divisions = append(s.Divisions, division)
	}
	sort.Strings(s.Divisions)
	for _, p := range d.pages {
		s.EstimatedTotal += p.EstimatedTokens
	}
	return s
}

// Fingerprint returns a stable content hash over the ordered page set.
// Two documents with identical pages produce identical fingerprints.
func (d *ClassifiedDocument) Fingerprint() string {
	h := sha256.New()
	for _, p := range d.pages {
		fmt.Fprintf(h, "%d|%s|%s|%s|", p.PageNumber, p.SheetNumber, p.Trade, p.PageType)
		h.Write([]byte(p.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
