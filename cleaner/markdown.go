package cleaner

import (
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	convOnce sync.Once
	conv     *converter.Converter
)

// markdownConverter returns the shared converter. The base plugin drops
// script, style, iframe, head and comments; tables keep minimal padding.
func markdownConverter() *converter.Converter {
	convOnce.Do(func() {
		conv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		)
	})
	return conv
}

// Markdown renders an HTML fragment as Markdown. Relative links and image
// sources are resolved against pageURL.
func Markdown(fragment, pageURL string) (string, error) {
	if fragment == "" {
		return "", nil
	}
	return markdownConverter().ConvertString(fragment, converter.WithDomain(pageURL))
}
