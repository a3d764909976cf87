package points

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("points: insufficient funds")
	ErrSoldOut            = errors.New("points: reward sold out")
	ErrInvalidTransition  = errors.New("points: invalid conversion transition")
	ErrMemberNotFound     = errors.New("points: member not found")
	ErrRewardNotFound     = errors.New("points: reward not found")
	ErrRewardInactive     = errors.New("points: reward not active")
	ErrConversionNotFound = errors.New("points: conversion not found")
	ErrInvalidAmount      = errors.New("points: amount must be positive")
	ErrNotAdmin           = errors.New("points: actor is not an admin")
	ErrBackendUnavailable = errors.New("points: backend unavailable")
)

// Wire codes shared by the HTTP API, the client and metric labels.
const (
	CodeOK                 = "ok"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeSoldOut            = "sold_out"
	CodeInvalidTransition  = "invalid_transition"
	CodeMemberNotFound     = "member_not_found"
	CodeRewardNotFound     = "reward_not_found"
	CodeRewardInactive     = "reward_inactive"
	CodeConversionNotFound = "conversion_not_found"
	CodeInvalidAmount      = "invalid_amount"
	CodeNotAdmin           = "not_admin"
	CodeBackendUnavailable = "backend_unavailable"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrSoldOut, CodeSoldOut},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrMemberNotFound, CodeMemberNotFound},
	{ErrRewardNotFound, CodeRewardNotFound},
	{ErrRewardInactive, CodeRewardInactive},
	{ErrConversionNotFound, CodeConversionNotFound},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrNotAdmin, CodeNotAdmin},
}

// Code maps err to its stable wire code. Errors outside the taxonomy map to
// CodeBackendUnavailable; nil maps to CodeOK.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeBackendUnavailable
}

// FromCode is the inverse of Code. Unknown codes return nil.
func FromCode(code string) error {
	if code == CodeBackendUnavailable {
		return ErrBackendUnavailable
	}
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// isDomain reports whether err is an expected business outcome rather than
// an infrastructure failure.
func isDomain(err error) bool {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return true
		}
	}
	return false
}

// unavailable tags infrastructure errors as retryable backend failures and
// passes domain errors through untouched.
func unavailable(err error) error {
	if err == nil || isDomain(err) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
