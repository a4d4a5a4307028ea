package processing

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/teilomillet/luagen/config"
)

// Built-in system prompts. Each is a text/template executed with
// promptData; config.GenerationConfig.Prompts can replace any of them.
const (
	generatePrompt = `You are an expert Roblox developer.
Generate a single Roblox Lua script for Roblox Studio based on the user prompt.

Rules:
- Output ONLY Lua code (no markdown, no backticks, no explanations).
- Prefer a single Script that can be placed in ServerScriptService.
- If the prompt needs parts/models, include a short Lua comment block at top with exact Workspace object names to create.
- Use safe defaults and avoid external assets.
- Keep the script concise but functional.`

	fixPrompt = `You are an expert Roblox developer.
The user will describe a problem and then paste an existing Roblox Lua script.
Return the complete corrected script.

Rules:
- Output ONLY Lua code (no markdown, no backticks, no explanations).
- Keep the original structure and names unless they cause the problem.
- Fix the reported issue and any obvious errors that would stop the script from running.
- Use safe defaults and avoid external assets.`

	updatePrompt = `You are an expert Roblox developer.
The user will describe a change and then paste an existing Roblox Lua script, which may be empty.
Return the complete updated script with the change applied.

Rules:
- Output ONLY Lua code (no markdown, no backticks, no explanations).
- Preserve existing behavior that the change does not touch.
- If the existing script is empty, write a new script that satisfies the change.
- Use safe defaults and avoid external assets.`

	stepsPrompt = `You are an expert Roblox developer helping a beginner.
Given what the user wants to build, write the steps to set it up in Roblox Studio.

Rules:
- Output a numbered list, one short step per line, at most {{.MaxSteps}} steps.
- Plain text only (no markdown, no code, no headings).
- Mention exact object names and where to put the script.`
)

// promptData is the data every system prompt template is executed with.
type promptData struct {
	MaxSteps int
}

// Processor builds mode-specific chat messages from validated requests.
// Templates are parsed once at construction and rendered once, since their
// data does not depend on the request.
type Processor struct {
	system   map[Mode]string
	steps    string
	maxSteps int
}

// NewProcessor renders the system prompts from the generation config. It
// fails fast on templates that do not parse or execute.
func NewProcessor(cfg config.GenerationConfig) (*Processor, error) {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	sources := map[string]string{
		string(ModeGenerate): generatePrompt,
		string(ModeFix):      fixPrompt,
		string(ModeUpdate):   updatePrompt,
		"steps":              stepsPrompt,
	}
	for name, override := range cfg.Prompts {
		if strings.TrimSpace(override) != "" {
			sources[name] = override
		}
	}

	data := promptData{MaxSteps: maxSteps}
	rendered := make(map[string]string, len(sources))
	for name, src := range sources {
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to execute template %s: %w", name, err)
		}
		rendered[name] = strings.TrimSpace(buf.String())
	}

	return &Processor{
		system: map[Mode]string{
			ModeGenerate: rendered[string(ModeGenerate)],
			ModeFix:      rendered[string(ModeFix)],
			ModeUpdate:   rendered[string(ModeUpdate)],
		},
		steps:    rendered["steps"],
		maxSteps: maxSteps,
	}, nil
}

// BuildMessages returns the ordered messages for the primary completion.
//
//	generate: system, prompt
//	fix:      system, issue, existing script
//	update:   system, change request, existing script (may be empty)
func (p *Processor) BuildMessages(req Request) ([]Message, error) {
	switch r := req.(type) {
	case GenerateRequest:
		return []Message{
			{Role: RoleSystem, Content: p.system[ModeGenerate]},
			{Role: RoleUser, Content: r.Prompt},
		}, nil
	case FixRequest:
		return []Message{
			{Role: RoleSystem, Content: p.system[ModeFix]},
			{Role: RoleUser, Content: r.Issue},
			{Role: RoleUser, Content: r.ExistingLua},
		}, nil
	case UpdateRequest:
		return []Message{
			{Role: RoleSystem, Content: p.system[ModeUpdate]},
			{Role: RoleUser, Content: r.Prompt},
			{Role: RoleUser, Content: r.ExistingLua},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

// StepsMessages returns the messages for the secondary plan-steps completion.
func (p *Processor) StepsMessages(prompt string) []Message {
	return []Message{
		{Role: RoleSystem, Content: p.steps},
		{Role: RoleUser, Content: prompt},
	}
}

// ParseSteps applies the configured step limit to raw plan output.
func (p *Processor) ParseSteps(text string) []string {
	return ParseStepsN(text, p.maxSteps)
}
