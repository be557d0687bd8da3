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

import "strings"

// Operation is a read-only snapshot of a logistics operation fetched from
// the ERP. Only the fields the detection methods use are carried.
type Operation struct {
	ID              string `json:"id"`
	ProjectName     string `json:"projectName"`
	BookingTracking string `json:"bookingTracking"`
	MBL             string `json:"mbl_awb"`
	HBL             string `json:"hbl_awb"`
	ClientID        string `json:"clientId"`
	OrganizationID  string `json:"organizationId"`
	Status          string `json:"status"`
}

// Terminal operation statuses. Operations in these states are not
// sensible link targets and are filtered out of the candidate set.
var terminalStatuses = map[string]bool{
	"closed":    true,
	"cancelled": true,
	"archived":  true,
}

// IsOpen reports whether the operation is still a sensible link target.
func (o *Operation) IsOpen() bool {
	return !terminalStatuses[strings.ToLower(o.Status)]
}

// Client is a read-only snapshot of an ERP client record. Email is the
// registered contact address used by the client-email detector.
type Client struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
}
