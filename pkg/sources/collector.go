package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nekopy/Tokei/pkg/reconcile"
)

// SourceRollup names the GameSentenceMiner rollup database in warnings.
const SourceRollup = "GSM DB"

// Paths selects the sources to read. Empty paths are skipped silently; the
// rollup is also skipped when set to "off".
type Paths struct {
	RetentionJSON     string
	AnkiMorphsDB      string
	KnownIntervalDays int
	MokuroVolumeData  string
	RollupDB          string
	ArticlesDir       string
}

// Metrics are the values read from every configured source. A source that
// fails to read leaves its metrics at zero.
type Metrics struct {
	Retention        Retention
	KnownLemmas      int64
	KnownInflections int64
	MangaChars       int64
	GSMChars         int64
	ArticleChars     int64
}

// Collector reads all configured sources and turns read errors into
// warnings.
type Collector struct {
	Paths    Paths
	Rollup   reconcile.RollupReader
	Logger   *slog.Logger
	Warnings []string
}

func (c *Collector) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
	c.logger().Warn("source skipped", "reason", msg)
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Collector) warnErr(err error) {
	var re *ReadError
	if errors.As(err, &re) {
		c.warn(sentence(re.Error()))
		return
	}
	c.warn(sentence(err.Error()))
}

func sentence(s string) string {
	if s == "" || strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

// Collect reads every source. liveByDay is the live character overlay used to
// correct the rollup total. The returned error is reserved for context
// cancellation; everything else becomes a warning.
func (c *Collector) Collect(ctx context.Context, liveByDay map[string]int64) (Metrics, error) {
	var m Metrics
	p := c.Paths

	if p.RetentionJSON != "" {
		r, err := ReadRetention(p.RetentionJSON)
		if err != nil {
			c.warnErr(err)
		} else {
			m.Retention = r
		}
	}

	if p.AnkiMorphsDB != "" {
		lemmas, inflections, err := ReadKnownCounts(ctx, p.AnkiMorphsDB, p.KnownIntervalDays)
		if err != nil {
			c.warnErr(err)
		} else {
			m.KnownLemmas, m.KnownInflections = lemmas, inflections
		}
	}

	if p.MokuroVolumeData != "" {
		chars, err := ReadMangaChars(p.MokuroVolumeData)
		if err != nil {
			c.warnErr(err)
		} else {
			m.MangaChars = chars
		}
	}

	if p.RollupDB != "" && !strings.EqualFold(p.RollupDB, "off") {
		m.GSMChars = c.collectRollup(ctx, p.RollupDB, liveByDay)
	}

	if p.ArticlesDir != "" {
		total, _, skipped, err := ReadArticleChars(p.ArticlesDir)
		if err != nil {
			c.warnErr(err)
		} else {
			m.ArticleChars = total
			if len(skipped) > 0 {
				c.warn(fmt.Sprintf("Skipped %d unreadable article(s) in %s.", len(skipped), p.ArticlesDir))
			}
		}
	}

	return m, ctx.Err()
}

func (c *Collector) collectRollup(ctx context.Context, path string, liveByDay map[string]int64) int64 {
	if c.Rollup.Logger == nil {
		c.Rollup.Logger = c.Logger
	}
	res, err := c.Rollup.Read(ctx, path, liveByDay)
	if err != nil {
		c.warnErr(newReadError(SourceRollup, path, err))
		if len(liveByDay) == 0 {
			return 0
		}
		// Without a rollup the live overlay is all there is.
		return reconcile.Reconcile(0, nil, liveByDay).Total
	}
	for _, w := range res.Warnings {
		c.warn(w)
	}
	return res.Total
}
