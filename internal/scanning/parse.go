package scanning

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// headerLines is how many non-blank lines at the top of a receipt are searched for a store brand
	headerLines = 5
	// names shorter than this after cleanup fall back to the raw line
	minNameLength = 3
)

// Categories is the closed set of garment categories a parsed item can be assigned
var Categories = []string{
	"Top",
	"Bottom",
	"Dress",
	"Outerwear",
	"Blazer",
	"Shoes",
	"Saree",
	"Accessories",
}

// clothingKeywords decide whether a receipt line describes a garment at all
var clothingKeywords = []string{
	"shirt",
	"pants",
	"dress",
	"jacket",
	"sweater",
	"jeans",
	"top",
	"bottom",
	"shoes",
	"sneakers",
	"boots",
	"saree",
	"blazer",
	"coat",
	"hoodie",
	"t-shirt",
	"tshirt",
	"shorts",
	"skirt",
	"accessories",
	"blouse",
	"trouser",
	"sweatshirt",
	"sweatpants",
	"sweat pants",
}

type categoryRule struct {
	keyword  string
	category string
}

// categoryTable is ordered: the first keyword found in a line wins, regardless of
// where in the line it appears. "Nike Sweatshirt" is a Top because "shirt" comes first.
var categoryTable = []categoryRule{
	{"shirt", "Top"},
	{"t-shirt", "Top"},
	{"tshirt", "Top"},
	{"top", "Top"},
	{"blouse", "Top"},
	{"pants", "Bottom"},
	{"jeans", "Bottom"},
	{"shorts", "Bottom"},
	{"skirt", "Bottom"},
	{"trouser", "Bottom"},
	{"bottom", "Bottom"},
	{"dress", "Dress"},
	{"jacket", "Outerwear"},
	{"coat", "Outerwear"},
	{"blazer", "Blazer"},
	{"sweater", "Top"},
	{"sweatshirt", "Top"},
	{"hoodie", "Top"},
	{"sweat pants", "Bottom"},
	{"sweatpants", "Bottom"},
	{"shoes", "Shoes"},
	{"sneakers", "Shoes"},
	{"boots", "Shoes"},
	{"saree", "Saree"},
	{"accessories", "Accessories"},
}

var (
	storeRe = regexp.MustCompile(`(?i)(?:Store|Shop|Retailer|Brand|From):\s*(.+)`)
	brandRe = regexp.MustCompile(`(?i)\b(Zara|H&M|Nike|Adidas|Puma|Gap|Old Navy|Forever 21|Uniqlo|Target|Walmart|Macy|Nordstrom|Banana Republic|J.Crew|Anthropologie|Urban Outfitters|ASOS|Shein|Fashion Nova)\b`)

	// the character class is literal: it accepts any run of X, S, M, L, |, digits and +
	labeledSizeRe = regexp.MustCompile(`(?i)\b(Size|SZ|SIZE)[\s:]*([XS|S|M|L|XL|XXL|XXXL|\d+]+)\b`)
	bareSizeRe    = regexp.MustCompile(`(?i)\b(XS|S|M|L|XL|XXL|XXXL|\d+)\b`)

	priceRe      = regexp.MustCompile(`\$(\d+\.?\d*)`)
	quantityRe   = regexp.MustCompile(`(?i)^\d+x\s*`)
	sizeSuffixRe = regexp.MustCompile(`(?i)\s*-\s*Size.*$`)
	priceStripRe = regexp.MustCompile(`\$\d+\.?\d*`)
)

// ParseReceiptText extracts clothing items from OCR'd receipt text.
// Items are returned in the order their lines appear. Text with no
// clothing keywords yields an empty slice.
func ParseReceiptText(text string) []ParsedItem {
	items := make([]ParsedItem, 0)
	lines := nonEmptyLines(text)
	storeBrand := headerBrand(lines)

	for i, original := range lines {
		lower := strings.ToLower(original)
		if !hasClothingKeyword(lower) {
			continue
		}

		item := ParsedItem{
			Name:     itemName(original),
			Category: category(lower),
			Size:     size(original),
		}

		if m := brandRe.FindStringSubmatch(original); m != nil {
			item.Brand = m[1]
		} else {
			item.Brand = storeBrand
		}

		if m := priceRe.FindStringSubmatch(original); m != nil {
			item.Price = m[1]
		} else if i+1 < len(lines) {
			if m := priceRe.FindStringSubmatch(lines[i+1]); m != nil {
				item.Price = m[1]
			}
		}

		items = append(items, item)
	}

	return items
}

func nonEmptyLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimSpace(r)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// headerBrand looks for a store label or a known brand in the first few lines.
// The first line matching either pattern ends the search.
func headerBrand(lines []string) string {
	for i := 0; i < len(lines) && i < headerLines; i++ {
		if m := storeRe.FindStringSubmatch(lines[i]); m != nil {
			return strings.TrimSpace(m[1])
		}
		if m := brandRe.FindStringSubmatch(lines[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

func hasClothingKeyword(lower string) bool {
	for _, k := range clothingKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func category(lower string) string {
	for _, rule := range categoryTable {
		if strings.Contains(lower, rule.keyword) {
			return rule.category
		}
	}
	return ""
}

func size(line string) string {
	if m := labeledSizeRe.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	if m := bareSizeRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// itemName strips the quantity prefix, size suffix and prices from a line
func itemName(line string) string {
	name := quantityRe.ReplaceAllString(line, "")
	name = sizeSuffixRe.ReplaceAllString(name, "")
	name = priceStripRe.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")

	if utf8.RuneCountInString(name) < minNameLength {
		name = strings.TrimSpace(strings.SplitN(line, "-", 2)[0])
	}
	if name == "" {
		return line
	}
	return name
}
