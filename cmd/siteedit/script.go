package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"wedsite/internal/editor"
	"wedsite/internal/site"
	"wedsite/internal/studio"
)

// Script is a list of edits applied to one session, in order.
type Script struct {
	Steps  []Step `yaml:"steps"`
	Submit bool   `yaml:"submit"`
	Output string `yaml:"output"`
}

// Step holds exactly one action.
type Step struct {
	Edit   *EditStep     `yaml:"edit,omitempty"`
	Set    *SetStep      `yaml:"set,omitempty"`
	Image  *ImageStep    `yaml:"image,omitempty"`
	Toggle *ToggleStep   `yaml:"toggle,omitempty"`
	Move   *MoveStep     `yaml:"move,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty"`
}

// EditStep types into a field through its inline editor.
type EditStep struct {
	Field  string   `yaml:"field"`
	Value  string   `yaml:"value"`
	Format []string `yaml:"format"`
}

// SetStep changes a value through the settings form.
type SetStep struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ImageStep uploads a local file into an image field.
type ImageStep struct {
	Field string `yaml:"field"`
	File  string `yaml:"file"`
}

// ToggleStep shows or hides a section.
type ToggleStep struct {
	Section string `yaml:"section"`
	Enabled bool   `yaml:"enabled"`
}

// MoveStep places a section at a position in render order.
type MoveStep struct {
	Section  string `yaml:"section"`
	Position int    `yaml:"position"`
}

var errBadStep = errors.New("step must hold exactly one action")

// LoadScript reads and checks a YAML script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, st := range s.Steps {
		if st.actions() != 1 {
			return nil, fmt.Errorf("step %d: %w", i+1, errBadStep)
		}
	}
	return &s, nil
}

func (st Step) actions() int {
	n := 0
	for _, set := range []bool{st.Edit != nil, st.Set != nil, st.Image != nil, st.Toggle != nil, st.Move != nil, st.Wait > 0} {
		if set {
			n++
		}
	}
	return n
}

// Apply runs every step against sess. Relative image paths resolve against dir.
func (s *Script) Apply(ctx context.Context, sess *studio.Session, dir string) error {
	for i, st := range s.Steps {
		if err := st.apply(ctx, sess, dir); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (st Step) apply(ctx context.Context, sess *studio.Session, dir string) error {
	switch {
	case st.Edit != nil:
		return inlineEdit(ctx, sess, *st.Edit)
	case st.Set != nil:
		return sess.Form.Set(st.Set.Key, st.Set.Value)
	case st.Image != nil:
		path := st.Image.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return sess.Canvas.PickImage(ctx, st.Image.Field, filepath.Base(path), f)
	case st.Toggle != nil:
		return sess.Canvas.SetSectionEnabled(site.SectionType(st.Toggle.Section), st.Toggle.Enabled)
	case st.Move != nil:
		return sess.Canvas.MoveSection(site.SectionType(st.Move.Section), st.Move.Position)
	case st.Wait > 0:
		t := time.NewTimer(st.Wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return errBadStep
}

func inlineEdit(ctx context.Context, sess *studio.Session, e EditStep) error {
	ed, err := sess.Canvas.Editor(e.Field)
	if err != nil {
		return err
	}
	if err := ed.Activate(); err != nil {
		return err
	}
	if err := ed.Input(e.Value); err != nil {
		ed.Cancel()
		return err
	}
	for _, cmd := range e.Format {
		if err := ed.Format(editor.Command(cmd)); err != nil {
			ed.Cancel()
			return fmt.Errorf("format %q: %w", cmd, err)
		}
	}
	if err := ed.Confirm(ctx); err != nil {
		ed.Cancel()
		return err
	}
	return nil
}
