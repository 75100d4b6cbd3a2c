package render

import (
	"context"
	"io"
	"log/slog"

	"wedsite/internal/profile"
	"wedsite/internal/site"
)

// Site renders rec as a complete read-only page. The theme comes from the
// record's global settings; an unknown theme falls back to the default and
// is logged.
func (r *Renderer) Site(ctx context.Context, w io.Writer, rec profile.Record, themes *ThemeStyles, opts Options) (Result, error) {
	tpl := site.Build(rec)
	opts.Editable = false
	opts.Editors = nil
	opts.OnFieldUpdate = nil
	if themes != nil && opts.Styles == nil {
		styles, err := themes.Bind(tpl.Global)
		if err != nil {
			r.logger.Warn("theme fallback",
				slog.String("theme", tpl.Global.Theme),
				slog.String("variant", tpl.Global.Variant),
				slog.Any("error", err),
			)
		}
		if styles != nil {
			opts.Styles = styles
		}
	}
	return r.RenderPage(ctx, w, tpl, opts)
}
