package cmd

import (
	"fmt"

	sdkerrors "github.com/quatton/toolsite/pkg/qsdk/qerr"
)

// sdkError adds guidance for the error kinds a user can act on.
func sdkError(err error) error {
	switch {
	case err == nil:
		return nil
	case sdkerrors.IsCode(err, sdkerrors.CodeUnauthorized):
		return fmt.Errorf("authentication required: run 'toolsite login' (%w)", err)
	case sdkerrors.IsCode(err, sdkerrors.CodeNotFound):
		return fmt.Errorf("not found: check 'toolsite scripts' (%w)", err)
	case sdkerrors.IsCode(err, sdkerrors.CodeTransport):
		return fmt.Errorf("cannot reach server: is 'toolsite serve' running? (%w)", err)
	default:
		return err
	}
}
