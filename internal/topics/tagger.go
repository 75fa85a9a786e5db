// Package topics classifies paper titles against a fixed keyword taxonomy.
package topics

import (
	"regexp"
	"sort"
	"strings"
)

// Topic is one entry of the controlled vocabulary.
type Topic struct {
	Name     string
	Keywords []string
}

// Taxonomy is the default topic vocabulary.
var Taxonomy = []Topic{
	{Name: "Machine Learning", Keywords: []string{"machine learning", "neural network", "deep learning", "artificial intelligence", "ai", "classification", "regression", "supervised learning", "unsupervised learning"}},
	{Name: "Bayesian Statistics", Keywords: []string{"bayesian", "bayes", "mcmc", "posterior", "prior", "markov chain"}},
	{Name: "Survival Analysis", Keywords: []string{"survival", "hazard", "kaplan-meier", "cox", "time-to-event"}},
	{Name: "Causal Inference", Keywords: []string{"causal", "causality", "treatment effect", "propensity", "instrumental variable"}},
	{Name: "High-Dimensional Statistics", Keywords: []string{"high-dimensional", "sparse", "lasso", "ridge", "penalized", "regularization"}},
	{Name: "Time Series", Keywords: []string{"time series", "temporal", "forecasting", "autoregressive", "arima"}},
	{Name: "Nonparametric Statistics", Keywords: []string{"nonparametric", "kernel", "bandwidth", "smoothing"}},
	{Name: "Computational Statistics", Keywords: []string{"computational", "algorithm", "optimization", "simulation", "monte carlo"}},
	{Name: "Biostatistics", Keywords: []string{"biostatistics", "clinical trial", "medical", "epidemiology", "genetics"}},
	{Name: "Econometrics", Keywords: []string{"econometric", "economic", "panel data", "endogeneity"}},
	{Name: "Statistical Learning", Keywords: []string{"statistical learning", "cross-validation", "model selection", "prediction"}},
	{Name: "Hypothesis Testing", Keywords: []string{"testing", "p-value", "significance", "multiple testing"}},
	{Name: "Experimental Design", Keywords: []string{"experimental design", "randomization", "factorial", "design of experiments"}},
}

// shortKeyword is the length at or below which keywords must match whole words.
const shortKeyword = 3

type matcher struct {
	topic string
	plain []string
	words []*regexp.Regexp
}

// Tagger maps titles to topic names. It is safe for concurrent use.
type Tagger struct {
	matchers []matcher
}

// New builds a Tagger over the given taxonomy, or Taxonomy when none is given.
func New(taxonomy ...Topic) *Tagger {
	if len(taxonomy) == 0 {
		taxonomy = Taxonomy
	}
	t := &Tagger{matchers: make([]matcher, 0, len(taxonomy))}
	for _, topic := range taxonomy {
		m := matcher{topic: topic.Name}
		for _, kw := range topic.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if len(kw) <= shortKeyword {
				m.words = append(m.words, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
				continue
			}
			m.plain = append(m.plain, kw)
		}
		t.matchers = append(t.matchers, m)
	}
	return t
}

// Tag returns the sorted topic names whose keywords occur in title.
func (t *Tagger) Tag(title string) []string {
	lower := strings.ToLower(title)
	out := []string{}
	for _, m := range t.matchers {
		if m.matches(lower) {
			out = append(out, m.topic)
		}
	}
	sort.Strings(out)
	return out
}

// Names lists every topic in the vocabulary in declaration order.
func (t *Tagger) Names() []string {
	out := make([]string, 0, len(t.matchers))
	for _, m := range t.matchers {
		out = append(out, m.topic)
	}
	return out
}

func (m matcher) matches(lower string) bool {
	for _, kw := range m.plain {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, re := range m.words {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
