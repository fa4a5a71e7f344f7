package handlers

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/utils"
)

var registerOnce sync.Once

// RegisterValidators adds the "phone" and "invite_role" tags to gin's binding
// validator. It is safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected binding validator engine")
			return
		}
		if err = v.RegisterValidation("phone", validatePhone); err != nil {
			return
		}
		err = v.RegisterValidation("invite_role", validateInviteRole)
	})
	return err
}

func validatePhone(fl validator.FieldLevel) bool {
	return utils.NormalizePhone(fl.Field().String()) != ""
}

func validateInviteRole(fl validator.FieldLevel) bool {
	return models.Role(fl.Field().String()).Invitable()
}
