package batch

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"recreator/internal/domain"
)

const (
	msgGenerationEmpty   = "generation.empty"
	msgGenerationSuccess = "generation.success"
	msgGenerationPartial = "generation.partial"
	msgGenerationError   = "generation.error"
	msgMergeNone         = "merge.none"
	msgMergeSingle       = "merge.single"
	msgMergeDone         = "merge.done"
	msgMergePartial      = "merge.partial"
	msgMergeNoSegments   = "merge.no_segments"
	msgMergeFailed       = "merge.failed"
	msgMergeUnpublished  = "merge.unpublished"
)

// SupportedLocales lists the languages summaries are rendered in.
var SupportedLocales = []language.Tag{language.English, language.SimplifiedChinese}

var (
	localeMatcher  = language.NewMatcher(SupportedLocales)
	summaryCatalog = buildSummaryCatalog()
)

func buildSummaryCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		_ = b.SetString(tag, key, msg)
	}
	en, zh := language.English, language.SimplifiedChinese

	set(en, msgGenerationEmpty, "No segments were selected for generation")
	set(en, msgGenerationSuccess, "All %d segments generated successfully")
	set(en, msgGenerationPartial, "Generated %d of %d segments, %d failed")
	set(en, msgGenerationError, "All %d segments failed to generate")
	set(en, msgMergeNone, "Nothing to merge")
	set(en, msgMergeSingle, "Single segment, no merge needed")
	set(en, msgMergeDone, "Merged %d segments")
	set(en, msgMergePartial, "Merged %d segments, %d could not be downloaded")
	set(en, msgMergeNoSegments, "None of the %d segments could be downloaded")
	set(en, msgMergeFailed, "Merging %d segments failed")
	set(en, msgMergeUnpublished, "Merged %d segments but the result could not be stored")

	set(zh, msgGenerationEmpty, "没有选中需要生成的分镜")
	set(zh, msgGenerationSuccess, "全部 %d 个视频片段生成成功")
	set(zh, msgGenerationPartial, "%[1]d/%[2]d 个视频片段生成成功，%[3]d 个失败")
	set(zh, msgGenerationError, "全部 %d 个视频片段生成失败")
	set(zh, msgMergeNone, "没有需要合并的视频")
	set(zh, msgMergeSingle, "只有一个片段，无需合并")
	set(zh, msgMergeDone, "已合并 %d 个视频片段")
	set(zh, msgMergePartial, "已合并 %d 个视频片段，%d 个下载失败")
	set(zh, msgMergeNoSegments, "%d 个视频片段全部下载失败")
	set(zh, msgMergeFailed, "%d 个视频片段合并失败")
	set(zh, msgMergeUnpublished, "已合并 %d 个视频片段，但结果保存失败")
	return b
}

// MatchLocale resolves a BCP 47 string or Accept-Language value to a
// supported tag, falling back to English.
func MatchLocale(locale string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := localeMatcher.Match(tags...)
	return SupportedLocales[idx]
}

// Summarizer renders human readable stage summaries in one locale.
type Summarizer struct {
	printer *message.Printer
}

// NewSummarizer builds a summarizer for locale.
func NewSummarizer(locale string) Summarizer {
	return Summarizer{printer: message.NewPrinter(MatchLocale(locale), message.Catalog(summaryCatalog))}
}

// Generation summarizes an aggregated batch result.
func (s Summarizer) Generation(r domain.BatchResult) string {
	switch {
	case r.Requested == 0:
		return s.printer.Sprintf(msgGenerationEmpty)
	case r.Status == domain.StatusSuccess:
		return s.printer.Sprintf(msgGenerationSuccess, r.Requested)
	case r.Status == domain.StatusPartial:
		return s.printer.Sprintf(msgGenerationPartial, r.SucceededCount, r.Requested, r.FailedCount)
	default:
		return s.printer.Sprintf(msgGenerationError, r.Requested)
	}
}

// Merge summarizes a merge stage output.
func (s Summarizer) Merge(m domain.MergeOutput) string {
	failed := len(m.FetchFailures)
	switch {
	case m.ErrorKind == domain.FailureConcatenation:
		return s.printer.Sprintf(msgMergeFailed, m.Segments)
	case m.ErrorKind == domain.FailurePublish:
		return s.printer.Sprintf(msgMergeUnpublished, m.Segments)
	case m.Status == domain.StatusError:
		return s.printer.Sprintf(msgMergeNoSegments, failed)
	case m.NoMergeNeeded && m.ArtifactURL == "":
		return s.printer.Sprintf(msgMergeNone)
	case m.NoMergeNeeded:
		return s.printer.Sprintf(msgMergeSingle)
	case failed > 0:
		return s.printer.Sprintf(msgMergePartial, m.Segments, failed)
	default:
		return s.printer.Sprintf(msgMergeDone, m.Segments)
	}
}
