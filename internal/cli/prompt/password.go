package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrPasswordMismatch is returned when the confirmation does not repeat the
// password.
var ErrPasswordMismatch = errors.New("passwords do not match")

// askPassword runs one masked prompt. A zero minLength disables the length
// check.
func askPassword(label string, minLength int) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	if minLength > 0 {
		p.Validate = func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		}
	}

	result, err := p.Run()
	return result, wrapError(err)
}

// PasswordWithConfirmation prompts for a password twice, enforcing the
// minimum length on the first entry.
func PasswordWithConfirmation(label, confirmLabel string, minLength int) (string, error) {
	password, err := askPassword(label, minLength)
	if err != nil {
		return "", err
	}

	confirm, err := askPassword(confirmLabel, 0)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}
