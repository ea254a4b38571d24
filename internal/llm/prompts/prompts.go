// Package prompts builds the system/user prompts for question
// generation and answer grading from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

const (
	// GenerateSystem instructs the model acting as question author.
	GenerateSystem = "You are an expert university examiner. " +
		"Generate ONE question based only on the provided lecture context. " +
		"Return strict JSON."

	// GradeSystem instructs the model acting as grader.
	GradeSystem = "You are a strict but fair examiner. " +
		"Grade the student's answer using the lecture context and the ideal answer. " +
		"Return strict JSON only."
)

var (
	loadOnce     sync.Once
	loadErr      error
	generateTmpl *template.Template
	gradeTmpl    *template.Template
)

// GenerateData holds template data for the question-generation prompt.
type GenerateData struct {
	Context    string
	Difficulty int
	Avoid      string
}

// GradeData holds template data for the grading prompt.
type GradeData struct {
	Context       string
	Question      string
	IdealAnswer   string
	StudentAnswer string
}

func load() error {
	loadOnce.Do(func() {
		parse := func(name string) (*template.Template, error) {
			content, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				return nil, fmt.Errorf("read prompt template %s: %w", name, err)
			}
			return template.New(name).Parse(string(content))
		}
		if generateTmpl, loadErr = parse("generate.txt"); loadErr != nil {
			return
		}
		gradeTmpl, loadErr = parse("grade.txt")
	})
	return loadErr
}

// BuildGeneratePrompt renders the user prompt for question generation.
// avoid lists previously asked questions; each entry is truncated to
// 200 characters and at most the last 25 are included.
func BuildGeneratePrompt(context string, difficulty int, avoid []string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	if len(avoid) > 25 {
		avoid = avoid[len(avoid)-25:]
	}
	var sb strings.Builder
	for _, q := range avoid {
		if len(q) > 200 {
			q = q[:200]
		}
		sb.WriteString("- " + q + "\n")
	}
	avoidBlock := strings.TrimRight(sb.String(), "\n")
	if avoidBlock == "" {
		avoidBlock = "- (none)"
	}

	var buf bytes.Buffer
	err := generateTmpl.Execute(&buf, GenerateData{
		Context:    context,
		Difficulty: difficulty,
		Avoid:      avoidBlock,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildGradePrompt renders the user prompt for answer grading.
func BuildGradePrompt(data GradeData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := gradeTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
