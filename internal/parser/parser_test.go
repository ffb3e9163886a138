package parser_test

import (
	"strings"
	"testing"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/parser"
)

func TestSniff(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want domain.FeedFormat
	}{
		{"json array", `[{"name":"a"}]`, domain.FormatJSON},
		{"json object", `{"products":[]}`, domain.FormatJSON},
		{"json with bom and whitespace", "\xef\xbb\xbf  {\"a\":1}", domain.FormatJSON},
		{"xml prolog", `<?xml version="1.0"?><feed/>`, domain.FormatXML},
		{"xml bare tag", `<products><product/></products>`, domain.FormatXML},
		{"csv", "name,price\nWidget,9.99", domain.FormatDelimited},
		{"empty", "", domain.FormatDelimited},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parser.Sniff([]byte(tc.data)); got != tc.want {
				t.Errorf("Sniff() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseDelimited(t *testing.T) {
	data := strings.Join([]string{
		"Product Name,URL,Price,MSRP,UPC,In Stock",
		"Widget A,https://shop.test/a,19.99,24.99,012345678905,yes",
		`Widget B,https://shop.test/b,"1.299,00",,,no`,
		"Widget C,https://shop.test/c,not-a-price,,,yes",
	}, "\n")

	result, err := parser.Parse([]byte(data), domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.RowsRead != 3 {
		t.Errorf("RowsRead = %d, want 3", result.RowsRead)
	}
	if result.RowsParsed != 2 {
		t.Errorf("RowsParsed = %d, want 2", result.RowsParsed)
	}
	if result.RowsParsed > result.RowsRead {
		t.Errorf("invariant violated: RowsParsed %d > RowsRead %d", result.RowsParsed, result.RowsRead)
	}
	if len(result.RowErrors) != 1 {
		t.Fatalf("RowErrors = %d, want 1", len(result.RowErrors))
	}
	if result.RowErrors[0].Row != 4 {
		t.Errorf("RowErrors[0].Row = %d, want 4", result.RowErrors[0].Row)
	}

	a := result.Records[0]
	if a.Name != "Widget A" || a.Price != 19.99 || a.UPC != "012345678905" {
		t.Errorf("unexpected record: %+v", a)
	}
	if a.OriginalPrice == nil || *a.OriginalPrice != 24.99 {
		t.Errorf("OriginalPrice = %v, want 24.99", a.OriginalPrice)
	}
	if !a.InStock {
		t.Error("record A should be in stock")
	}
	if a.Currency != "USD" {
		t.Errorf("Currency = %q, want default USD", a.Currency)
	}

	b := result.Records[1]
	if b.Price != 1299.00 {
		t.Errorf("european price = %v, want 1299.00", b.Price)
	}
	if b.InStock {
		t.Error("record B should be out of stock")
	}
}

func TestParseDelimitedSniffsDelimiter(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"tab", "name\turl\tprice\nWidget\thttps://shop.test/w\t5.00"},
		{"semicolon", "name;url;price\nWidget;https://shop.test/w;5.00"},
		{"pipe", "name|url|price\nWidget|https://shop.test/w|5.00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := parser.Parse([]byte(tc.data), domain.FormatDelimited)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if result.RowsParsed != 1 {
				t.Fatalf("RowsParsed = %d, want 1", result.RowsParsed)
			}
			if result.Records[0].Price != 5.00 {
				t.Errorf("Price = %v, want 5.00", result.Records[0].Price)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	data := `{
		"products": [
			{"title": "Ammo Box", "link": "https://shop.test/ammo", "price": 34.5, "sku": "AB-1", "quantity": 0},
			{"title": "No Price", "link": "https://shop.test/none"},
			"not-an-object"
		]
	}`

	result, err := parser.Parse([]byte(data), domain.FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.RowsRead != 3 {
		t.Errorf("RowsRead = %d, want 3", result.RowsRead)
	}
	if result.RowsParsed != 1 {
		t.Errorf("RowsParsed = %d, want 1", result.RowsParsed)
	}
	if len(result.RowErrors) != 2 {
		t.Errorf("RowErrors = %d, want 2", len(result.RowErrors))
	}

	rec := result.Records[0]
	if rec.Name != "Ammo Box" || rec.Price != 34.5 || rec.SKU != "AB-1" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestParseJSONTopLevelArray(t *testing.T) {
	data := `[{"name": "Widget", "url": "https://shop.test/w", "price": "12.00"}]`

	result, err := parser.Parse([]byte(data), domain.FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.RowsParsed != 1 {
		t.Fatalf("RowsParsed = %d, want 1", result.RowsParsed)
	}
}

func TestParseJSONNoProductArray(t *testing.T) {
	if _, err := parser.Parse([]byte(`{"meta": {}}`), domain.FormatJSON); err == nil {
		t.Error("Parse() expected error for object without product array")
	}
}

func TestParseXML(t *testing.T) {
	data := `<?xml version="1.0"?>
	<feed>
		<product id="p-1">
			<name>Rifle Case</name>
			<url>https://shop.test/case</url>
			<price>89.99</price>
			<brand>Acme</brand>
		</product>
		<product>
			<name>Missing Price</name>
			<url>https://shop.test/nope</url>
		</product>
	</feed>`

	result, err := parser.Parse([]byte(data), domain.FormatXML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.RowsRead != 2 {
		t.Errorf("RowsRead = %d, want 2", result.RowsRead)
	}
	if result.RowsParsed != 1 {
		t.Errorf("RowsParsed = %d, want 1", result.RowsParsed)
	}

	rec := result.Records[0]
	if rec.Name != "Rifle Case" || rec.Price != 89.99 || rec.Brand != "Acme" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ItemID != "p-1" {
		t.Errorf("ItemID from attribute = %q, want p-1", rec.ItemID)
	}
}

func TestParseAutoSniffs(t *testing.T) {
	data := `[{"name": "W", "url": "https://shop.test/w", "price": 1}]`
	result, err := parser.Parse([]byte(data), domain.FormatAuto)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.RowsParsed != 1 {
		t.Errorf("RowsParsed = %d, want 1", result.RowsParsed)
	}
}

func TestNormalizePrice(t *testing.T) {
	testCases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"19.99", 19.99, false},
		{"$1,234.56", 1234.56, false},
		{"1.234,56", 1234.56, false},
		{"  7 ", 7, false},
		{"€45,00", 45.00, false},
		{"free", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parser.NormalizePrice(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NormalizePrice(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("NormalizePrice(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeStock(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"", true}, // absent defaults to in stock
		{"yes", true},
		{"In Stock", true},
		{"1", true},
		{"no", false},
		{"Out of Stock", false},
		{"sold out", false},
		{"0", false},
		{"unknown-token", true},
	}

	for _, tc := range testCases {
		if got := parser.NormalizeStock(tc.in); got != tc.want {
			t.Errorf("NormalizeStock(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResolveFieldsLenient(t *testing.T) {
	rec := parser.ResolveFields(7, map[string]string{
		"Product Name": "Widget",
		"price":        "oops",
	})

	if rec.Name != "Widget" {
		t.Errorf("Name = %q, want Widget", rec.Name)
	}
	if rec.Price != 0 {
		t.Errorf("Price = %v, want 0 for malformed input", rec.Price)
	}
	if rec.RowNumber != 7 {
		t.Errorf("RowNumber = %d, want 7", rec.RowNumber)
	}
}
