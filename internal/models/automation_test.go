// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import (
	"reflect"
	"testing"
)

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"plain text", "booking confirmed", false},
		{"single variable", "BKG {bookingTracking}", false},
		{"variable only", "{projectName}", false},
		{"empty", "", false},
		{"two variables", "{projectName} {operationId}", true},
		{"same variable twice", "{mbl_awb} / {mbl_awb}", true},
		{"unknown variable", "ref {containerNo}", true},
		{"unclosed brace", "ref {container", false},
		{"stray close brace", "ref} ok", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePattern(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}

func TestLinkingConditionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		conds   LinkingConditions
		wantErr bool
	}{
		{
			name: "valid zones and pattern",
			conds: LinkingConditions{
				SubjectPatterns: []string{"{projectName}"},
				SearchIn:        []string{ZoneSubject, ZoneBody},
			},
		},
		{
			name: "zone with spacing and case",
			conds: LinkingConditions{
				SearchIn: []string{" Subject "},
			},
		},
		{
			name: "unknown zone",
			conds: LinkingConditions{
				SearchIn: []string{"headers"},
			},
			wantErr: true,
		},
		{
			name: "bad pattern",
			conds: LinkingConditions{
				SubjectPatterns: []string{"{projectName} {operationId}"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLinkingConditionsNormalize(t *testing.T) {
	c := LinkingConditions{
		SearchIn: []string{" Subject", "BODY "},
	}
	c.Normalize()

	if !reflect.DeepEqual(c.SubjectPatterns, []string{""}) {
		t.Errorf("empty pattern list should normalize to [\"\"], got %v", c.SubjectPatterns)
	}
	if !reflect.DeepEqual(c.SearchIn, []string{ZoneSubject, ZoneBody}) {
		t.Errorf("zones not canonicalized: %v", c.SearchIn)
	}
	if !c.SearchesZone(ZoneSubject) || c.SearchesZone(ZoneAttachments) {
		t.Error("SearchesZone disagrees with normalized zones")
	}
}

func TestOperationIsOpen(t *testing.T) {
	tests := []struct {
		status string
		open   bool
	}{
		{"open", true},
		{"in_transit", true},
		{"", true},
		{"closed", false},
		{"cancelled", false},
		{"archived", false},
		{"Closed", false},
	}
	for _, tt := range tests {
		op := Operation{ID: "op-1", Status: tt.status}
		if got := op.IsOpen(); got != tt.open {
			t.Errorf("IsOpen() with status %q = %v, want %v", tt.status, got, tt.open)
		}
	}
}
