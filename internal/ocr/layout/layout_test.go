package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
)

const sampleHOCR = `
<html><body>
<div class="ocr_carea" id="block_1_1" title="bbox 50 40 900 95">
  <span class="ocr_line" title="bbox 50 40 900 95">
    <span class="ocrx_word" title="bbox 50 40 200 95; x_wconf 92">CITY</span>
    <span class="ocrx_word" title="bbox 210 40 400 95; x_wconf 88">COUNCIL</span>
    <span class="ocrx_word" title="bbox 410 40 900 95; x_wconf 90">MEETS</span>
  </span>
</div>
<div class="ocr_carea" id="block_1_2" title="bbox 50 120 900 600">
  <span class="ocr_line" title="bbox 50 120 900 160">
    <span class="ocrx_word" title="bbox 50 120 900 160; x_wconf 85">The</span>
  </span>
  <span class="ocr_line" title="bbox 50 170 900 210">
    <span class="ocrx_word" title="bbox 50 170 900 210; x_wconf 81">council</span>
  </span>
  <span class="ocr_line" title="bbox 50 220 900 260">
    <span class="ocrx_word" title="bbox 50 220 900 260; x_wconf 83">met.</span>
  </span>
</div>
<div class="ocr_carea" id="block_1_3" title="bbox 950 40 1200 200">
</div>
</body></html>
`

func TestAnalyzeLayoutClassifiesBlocks(t *testing.T) {
	a := New()
	segments, err := a.AnalyzeLayout(context.Background(), sampleHOCR, nil)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	require.Equal(t, domain.SegmentKindHeadline, segments[0].Kind)
	require.Equal(t, "CITY COUNCIL MEETS", segments[0].Text)

	require.Equal(t, domain.SegmentKindArticle, segments[1].Kind)
	require.Contains(t, segments[1].Text, "council")

	require.Equal(t, domain.SegmentKindImage, segments[2].Kind)
}
