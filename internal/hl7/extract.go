// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hl7 pulls the fields this service cares about out of a
// decoded MLLP frame's pipe-delimited segments. It validates only
// what it reads, per spec: no general HL7 conformance checking.
package hl7

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrValidation is wrapped by every field-extraction failure so
// callers can treat the whole message as a no-op without inspecting
// the message_type.
var ErrValidation = errors.New("hl7: validation failed")

// MessageType is the HL7 trigger event, e.g. "ADT^A01" or "ORU^R01".
type MessageType string

const (
	Admission MessageType = "ADT^A01"
	Discharge MessageType = "ADT^A03"
	LabResult MessageType = "ORU^R01"
)

const creatinineTestName = "CREATININE"

// Message is a parsed view over a segment list: just the fields the
// processor state machine needs.
type Message struct {
	Type MessageType
	MRN  string

	// Populated only for Admission.
	DOB string
	Sex string

	// Populated only for a LabResult carrying a CREATININE OBX.
	IsCreatinine    bool
	CreatinineValue float64
}

func field(segment string, index int) (string, bool) {
	parts := strings.Split(segment, "|")
	if index < 0 || index >= len(parts) {
		return "", false
	}
	return parts[index], true
}

func findSegment(segments []string, prefix string) (string, bool) {
	for _, s := range segments {
		if strings.HasPrefix(s, prefix+"|") {
			return s, true
		}
	}
	return "", false
}

// Extract parses the fields of interest from segments. It never
// fails on an unknown message type: unknown types simply come back
// with only Type populated, and the caller treats them as a no-op.
func Extract(segments []string) (Message, error) {
	msh, ok := findSegment(segments, "MSH")
	if !ok {
		return Message{}, fmt.Errorf("%w: missing MSH segment", ErrValidation)
	}

	msgType, ok := field(msh, 8)
	if !ok || msgType == "" {
		return Message{}, fmt.Errorf("%w: missing MSH-9 message type", ErrValidation)
	}

	msg := Message{Type: MessageType(msgType)}

	switch msg.Type {
	case Admission, Discharge:
		pid, ok := findSegment(segments, "PID")
		if !ok {
			return Message{}, fmt.Errorf("%w: missing PID segment", ErrValidation)
		}

		mrn, err := extractMRN(pid)
		if err != nil {
			return Message{}, err
		}
		msg.MRN = mrn

		if msg.Type == Admission {
			dob, ok := field(pid, 7)
			if !ok || !validDOB(dob) {
				return Message{}, fmt.Errorf("%w: invalid PID-8 date of birth %q", ErrValidation, dob)
			}
			msg.DOB = dob

			sex, ok := field(pid, 8)
			if !ok || (sex != "M" && sex != "F") {
				return Message{}, fmt.Errorf("%w: invalid PID-9 sex %q", ErrValidation, sex)
			}
			msg.Sex = sex
		}

	case LabResult:
		pid, ok := findSegment(segments, "PID")
		if !ok {
			return Message{}, fmt.Errorf("%w: missing PID segment", ErrValidation)
		}
		mrn, err := extractMRN(pid)
		if err != nil {
			return Message{}, err
		}
		msg.MRN = mrn

		obx, ok := findSegment(segments, "OBX")
		if !ok {
			// No OBX at all: treated as a no-op lab result, not a
			// validation failure (some ORU^R01 carry only NTE/OBR).
			return msg, nil
		}

		testName, _ := field(obx, 3)
		if strings.ToUpper(testName) != creatinineTestName {
			return msg, nil
		}

		valueStr, ok := field(obx, 5)
		if !ok {
			return Message{}, fmt.Errorf("%w: missing OBX-6 value", ErrValidation)
		}

		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil || value <= 0 {
			return Message{}, fmt.Errorf("%w: non-numeric or non-positive creatinine value %q", ErrValidation, valueStr)
		}

		msg.IsCreatinine = true
		msg.CreatinineValue = value
	}

	return msg, nil
}

func extractMRN(pid string) (string, error) {
	mrn, ok := field(pid, 3)
	if !ok || mrn == "" || !isAllDigits(mrn) {
		return "", fmt.Errorf("%w: invalid PID-4 MRN %q", ErrValidation, mrn)
	}
	return mrn, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validDOB(s string) bool {
	_, err := time.Parse("20060102", s)
	return err == nil
}

// Age computes a person's age in years using proleptic Gregorian
// arithmetic: the difference in calendar years, minus one if
// (month, day) hasn't yet occurred this year relative to now.
func Age(dob string, now time.Time) (int, error) {
	t, err := time.Parse("20060102", dob)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	age := now.Year() - t.Year()
	if (now.Month() < t.Month()) || (now.Month() == t.Month() && now.Day() < t.Day()) {
		age--
	}
	return age, nil
}

// SexCode maps the HL7 M/F token to the store's 0/1 encoding.
func SexCode(sex string) int {
	if sex == "F" {
		return 1
	}
	return 0
}
