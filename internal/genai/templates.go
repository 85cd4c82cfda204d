package genai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openroger/openroger/internal/phase"
)

// Templates holds the per-phase prompt templates. Each template embeds the
// user's project prompt via a single %q verb.
type Templates struct {
	byPhase map[phase.Phase]string
}

// DefaultTemplates returns the built-in prompt templates. Architecture,
// database design and review ask for plain markdown; backend and frontend
// ask for marker-delimited multi-file output.
func DefaultTemplates() *Templates {
	return &Templates{byPhase: map[phase.Phase]string{
		phase.Architecture: `You are the Architecture Agent. The user wants to build: %q.

Produce a short architecture document (markdown) that includes:
1. Roles (e.g. Admin, Staff, User)
2. Main modules
3. Tech stack: Next.js frontend, Node.js backend, MongoDB (Mongoose inside backend)
4. Folder structure: frontend/ (Next.js), backend/ (Node.js + Express + Mongoose only)

Output ONLY the markdown document, no extra commentary.`,

		phase.DatabaseDesign: `The user wants to build: %q.

You are the Database Agent. Design a MongoDB schema (collections and key fields) for this app. Schema and scripts live in the db/ folder (Mongoose used in backend).
Output a markdown document with:
1. List of collections (e.g. users, gym_members, bookings)
2. For each collection: field names and types (string, number, ObjectId, date, etc.)
3. Brief relation notes (references between collections)

Save this as db/schema.md. Output ONLY the markdown, no extra text.`,

		phase.BackendDevelopment: `The user wants to build: %q.

You are the Backend Agent. Generate a minimal Node.js + Express backend.

First output the exact contents of package.json (valid JSON, with "name", "version", "type": "module", "dependencies" including "express" and "mongoose"). Then on the next line write exactly: ---FILE: src/index.js--- and then the exact contents of src/index.js (Express server on port 3001, express.json(), one GET /health route returning { ok: true }, and a comment that MongoDB connection will be added).

Format:
[package.json content as single line or escaped]
---FILE: src/index.js---
[full index.js content]

Output only these two file contents as specified.`,

		phase.FrontendDevelopment: `The user wants to build: %q.

You are the Frontend Agent. Generate a minimal Next.js app structure.

Output exactly in this format, with no extra text before or after:
---FILE: package.json---
[valid package.json with "next", "react", "react-dom" in dependencies]
---FILE: src/app/page.tsx---
[default export: a simple page with a heading and short description of the app]
---FILE: src/app/layout.tsx---
[default export: root layout with html, body, and children]

Use ---FILE: path--- before each file's content. Output only these files.`,

		phase.ReviewRefinement: `The user wanted to build: %q.

You are in the Review phase. Output a short markdown summary (3-5 bullets) of what was generated: architecture, database design, backend, and frontend. No code.`,
	}}
}

// Render produces the full prompt for a phase. Unknown phases fall back to a
// plain summarization request.
func (t *Templates) Render(p phase.Phase, userPrompt string) string {
	tmpl, ok := t.byPhase[p]
	if !ok {
		return fmt.Sprintf("Summarize what should be done for: %s", userPrompt)
	}
	return fmt.Sprintf(tmpl, userPrompt)
}

// LoadTemplates reads per-phase overrides from a YAML file of the form
// `phase_name: template`. Phases absent from the file keep their defaults.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	t := DefaultTemplates()
	for name, tmpl := range raw {
		p := phase.Phase(name)
		if !p.Valid() {
			return nil, fmt.Errorf("prompts file: unknown phase %q", name)
		}
		t.byPhase[p] = tmpl
	}
	return t, nil
}
