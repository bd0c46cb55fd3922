package api

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// transferBody is the POST /api/transfer payload. Front ends send the amount
// as a number or a string, so the body is decoded weakly.
type transferBody struct {
	BankID          string  `mapstructure:"bankId"`
	Username        string  `mapstructure:"username"`
	Password        string  `mapstructure:"password"`
	ReceiverIBAN    string  `mapstructure:"receiverIban"`
	Amount          float64 `mapstructure:"amount"`
	Description     string  `mapstructure:"description"`
	BeneficiaryName string  `mapstructure:"beneficiaryName"`
	OTPCode         string  `mapstructure:"otpCode"`
	SessionID       string  `mapstructure:"sessionId"`
}

func decodeTransferBody(r *http.Request) (transferBody, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return transferBody{}, err
	}
	var body transferBody
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &body,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return transferBody{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return transferBody{}, err
	}
	return body, nil
}

// complete reports whether every required field is set. "NaN" and "Inf"
// parse as amounts but can be neither transferred nor encoded back.
func (b transferBody) complete() bool {
	if math.IsNaN(b.Amount) || math.IsInf(b.Amount, 0) {
		return false
	}
	return b.BankID != "" && b.Username != "" && b.Password != "" && b.ReceiverIBAN != "" && b.Amount != 0
}

func present(v string) string {
	if v == "" {
		return "[MISSING]"
	}
	return "[PROVIDED]"
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTransferBody(r)
	if err != nil {
		s.logger.WithError(err).Warn("Unreadable transfer request")
		writeFailure(w, http.StatusBadRequest, msgIncomplete)
		return
	}

	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = "[NONE]"
	}
	log := s.logger.WithFields(logrus.Fields{
		"bankId":       body.BankID,
		"username":     present(body.Username),
		"password":     present(body.Password),
		"otpCode":      present(body.OTPCode),
		"sessionId":    sessionID,
		"amount":       body.Amount,
		"receiverIban": body.ReceiverIBAN,
	})
	log.Info("Transfer request received")

	if !body.complete() {
		log.Warn("Validation failed, missing required fields")
		writeFailure(w, http.StatusBadRequest, msgIncomplete)
		return
	}
	bank, err := s.banks.Get(body.BankID)
	if err != nil {
		log.Warn("Bank not found")
		writeFailure(w, http.StatusBadRequest, msgUnknownBank)
		return
	}
	if s.service == nil || s.cfg.Mode == config.ModeDisabled {
		writeFailure(w, http.StatusBadRequest, msgNotConfigured)
		return
	}

	req := transfer.Request{
		Bank:            bank,
		Username:        body.Username,
		Password:        body.Password,
		ReceiverIBAN:    body.ReceiverIBAN,
		Amount:          body.Amount,
		Description:     body.Description,
		BeneficiaryName: body.BeneficiaryName,
		OTPCode:         body.OTPCode,
	}

	var res *transfer.Result
	if s.cfg.Mode == config.ModeReal && body.OTPCode != "" && body.SessionID != "" {
		log.Info("Processing OTP submission")
		res, err = s.service.SubmitCode(r.Context(), body.SessionID, body.OTPCode)
	} else {
		log.WithField("bank", bank.Name).Info("Processing transfer")
		res, err = s.service.Run(r.Context(), req)
	}
	if err != nil {
		if errors.Is(err, errors.ErrCodeInvalidRequest) {
			log.WithError(err).Warn("Transfer request rejected")
			writeFailure(w, http.StatusBadRequest, msgIncomplete)
			return
		}
		log.WithError(err).Error("Transfer processing error")
		writeFailure(w, http.StatusInternalServerError, msgInternal)
		return
	}

	log.WithFields(logrus.Fields{
		"success":     res.Success,
		"requiresOtp": res.RequiresOTP,
		"errorCode":   res.ErrorCode,
	}).Info("Transfer request handled")
	writeJSON(w, http.StatusOK, res)
}
