package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFileType rejects anything that is not a .txt or .zip export.
	ErrInvalidFileType = errors.New("only .txt and .zip exports can be imported")
	// ErrInternalChatFile rejects the transcript file found inside an export.
	ErrInternalChatFile = errors.New("_chat.txt is part of an export; import the .zip or its folder instead")
	// ErrNoPhoneNumber is returned when neither the name nor the content
	// identifies the chat.
	ErrNoPhoneNumber = errors.New("no phone number or contact name found")
	// ErrUnreadable is returned when a text export cannot be read.
	ErrUnreadable = errors.New("file could not be read")
	// ErrDuplicate matches any *DuplicateError.
	ErrDuplicate = errors.New("chat already imported")
	// ErrWrongStep is returned by wizard actions not valid in the current step.
	ErrWrongStep = errors.New("action not available in this step")
	// ErrNothingExtracted is returned when every selected file was skipped.
	ErrNothingExtracted = errors.New("no chats could be extracted")
	// ErrNothingSelected is returned when proceeding with no file selected.
	ErrNothingSelected = errors.New("no files selected")
)

// DuplicateError names the phone number that already has a chat or is
// already queued.
type DuplicateError struct {
	Phone string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("chat for %s already exists", e.Phone)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// MissingPhoneNumbersError blocks the phone-number step while some
// contacts still have no number.
type MissingPhoneNumbersError struct {
	Count int
}

func (e *MissingPhoneNumbersError) Error() string {
	return fmt.Sprintf("Please provide phone numbers for all %d contact(s)", e.Count)
}

// DuplicatePhonesError lists user-entered numbers that are already taken.
type DuplicatePhonesError struct {
	Phones []string
}

func (e *DuplicatePhonesError) Error() string {
	return "Phone number(s) already exist: " + strings.Join(e.Phones, ", ")
}

func (e *DuplicatePhonesError) Is(target error) bool { return target == ErrDuplicate }
