package search

import "github.com/hyperjump/kinji/internal/models"

// Input is a query: either Text or ByIdentity.
type Input interface {
	isInput()
}

// Text asks for records semantically close to free text.
type Text struct {
	Query string
}

// ByIdentity asks for records similar to an existing record. The record itself is never
// part of the result.
type ByIdentity struct {
	ID models.RecordID
}

func (Text) isInput()       {}
func (ByIdentity) isInput() {}
