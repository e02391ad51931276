// internal/services/template_service.go
// 模板渲染服務 - 變數替換、跳脫、金額與日期格式化

package services

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"commerce-mailer/internal/models"
)

// placeholderPattern 模板佔位符格式: {{path.to.value}}
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// LineItem 渲染用的單一品項
type LineItem struct {
	Name           string
	Variant        string
	Quantity       int
	UnitPriceCents int64
}

// TemplateService 模板渲染服務
// 純函式，不依賴任何外部資源
type TemplateService struct{}

// NewTemplateService 建立模板渲染服務
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// Render 渲染模板並對變數值做 HTML 跳脫
// 用於任何使用者或第三方來源的文字 (例如顧客輸入的姓名)
func (s *TemplateService) Render(template string, data map[string]interface{}) string {
	return s.render(template, data, true)
}

// RenderUnsafe 渲染模板但不跳脫變數值
// 僅用於商店事先核可的 HTML 內容 (例如品項列表片段)
func (s *TemplateService) RenderUnsafe(template string, data map[string]interface{}) string {
	return s.render(template, data, false)
}

func (s *TemplateService) render(template string, data map[string]interface{}, escape bool) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value := lookupPath(data, path)
		if escape {
			return html.EscapeString(value)
		}
		return value
	})
}

// lookupPath 以點號路徑查詢巢狀 map
// 路徑不存在時回傳空字串，不報錯
func lookupPath(data map[string]interface{}, path string) string {
	parts := strings.Split(path, ".")
	var current interface{} = data

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = m[part]
		if !ok {
			return ""
		}
	}

	if current == nil {
		return ""
	}
	return fmt.Sprintf("%v", current)
}

// FormatCurrency 在地化金額格式 (金額以分為單位)
func (s *TemplateService) FormatCurrency(amountCents int64, currencyCode, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}

	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		unit = currency.USD
	}

	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(float64(amountCents) / 100)))
}

// FormatDate 在地化日期格式
// x/text 尚未提供日期在地化，以每語系固定版型處理
func (s *TemplateService) FormatDate(t time.Time, locale string) string {
	base, _ := language.Parse(locale)
	switch base {
	case language.German:
		return t.Format("02.01.2006")
	case language.French:
		return t.Format("02/01/2006")
	case language.Japanese:
		return t.Format("2006年01月02日")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// ItemsHTML 產生品項列表的 HTML 片段
// 內含的名稱與規格皆經過跳脫，片段本身可安全地以 RenderUnsafe 插入模板
func (s *TemplateService) ItemsHTML(items []LineItem, currencyCode, locale string) string {
	var b strings.Builder
	b.WriteString(`<ul class="cart-items">`)

	for _, item := range items {
		lineTotal := item.UnitPriceCents * int64(item.Quantity)
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(item.Name))
		if item.Variant != "" {
			b.WriteString(" (")
			b.WriteString(html.EscapeString(item.Variant))
			b.WriteString(")")
		}
		b.WriteString(fmt.Sprintf(" × %d — %s", item.Quantity, s.FormatCurrency(lineTotal, currencyCode, locale)))
		b.WriteString("</li>")
	}

	b.WriteString("</ul>")
	return b.String()
}

// LineItemsFromCart 轉換購物車項目為渲染品項
func LineItemsFromCart(items []models.CartItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = LineItem{
			Name:           item.ProductName,
			Variant:        item.VariantName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	return out
}

// LineItemsFromOrder 轉換訂單項目為渲染品項
func LineItemsFromOrder(items []models.OrderItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = LineItem{
			Name:           item.ProductName,
			Variant:        item.VariantName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	return out
}
