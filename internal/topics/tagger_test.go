package topics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagMatchesMultipleTopics(t *testing.T) {
	t.Parallel()

	got := New().Tag("Bayesian Methods for Sparse Regression with MCMC")
	require.Contains(t, got, "Bayesian Statistics")
	require.Contains(t, got, "High-Dimensional Statistics")
	require.Contains(t, got, "Machine Learning")
}

func TestTagIsDeterministicAndIdempotent(t *testing.T) {
	t.Parallel()

	tagger := New()
	title := "Causal Forecasting with Kernel Smoothing"
	first := tagger.Tag(title)
	require.Equal(t, first, tagger.Tag(title))
	require.Equal(t, []string{"Causal Inference", "Nonparametric Statistics", "Time Series"}, first)
}

func TestTagShortKeywordsNeedWholeWords(t *testing.T) {
	t.Parallel()

	tagger := New()
	require.Empty(t, tagger.Tag("A Fair Look at Cocoa Yields"))
	require.Contains(t, tagger.Tag("Cox Models Revisited"), "Survival Analysis")
	require.Contains(t, tagger.Tag("Trustworthy AI for Statistics"), "Machine Learning")
}

func TestTagNoMatchIsEmptyNotNil(t *testing.T) {
	t.Parallel()

	got := New().Tag("On the Geometry of Quilts")
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestCustomTaxonomy(t *testing.T) {
	t.Parallel()

	tagger := New(Topic{Name: "Graphs", Keywords: []string{"graph", " "}})
	require.Equal(t, []string{"Graphs"}, tagger.Tag("Random Graph Models"))
	require.Equal(t, []string{"Graphs"}, tagger.Names())
}
