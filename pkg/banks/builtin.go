package banks

// Builtin returns the banks remit ships with.
func Builtin() []Bank {
	return []Bank{
		{
			ID:           "banco-atlantico",
			Name:         "Banco Atlântico",
			PrimaryColor: "#009cb8",
			LoginURL:     "https://ibparticulares.atlantico.ao/eBankit.Sites/eBankit.UI.Web.InternetBanking/Login.aspx?sto=1",
			Selectors: Selectors{
				UsernameField:        "#MainContentFull_txtUserName_txField",
				PasswordField:        "#MainContentFull_txtPassword_txField",
				LoginButton:          "#MainContentFull_btnLogin",
				TransferMenu:         "#MainContent_TransactionMainContent_lanAccounts_tabTransfers",
				BalanceCheck:         "#MainContent_TransactionMainContent_txpTransactions_ctl01_rptAccounts_hAvailableBalance_0",
				ClickIbanTabOpen:     "#MainContent_TransactionMainContent_txpTransactions_ctl01_flwData_collapseEbankitNIBIcon",
				IbanField:            "#MainContent_TransactionMainContent_txpTransactions_ctl01_flwData_txtAccountDestIBAN_txField",
				AmountField:          "#MainContent_TransactionMainContent_txpTransactions_ctl01_FlowInnerContainer1_txtAmount_txField",
				DescriptionField:     "#MainContent_TransactionMainContent_txpTransactions_ctl01_FlowInnerContainer1_txtInterbankDescription_txField",
				BeneficiaryNameField: "#MainContent_TransactionMainContent_txpTransactions_ctl01_FlowInnerContainer1_txtBeneficiaryName_txField",
				ConfirmButton:        "#MainContent_TransactionMainContent_txpTransactions_ctl01_btnNextFlowItem",
				ConfirmationText:     "#MainContent_TransactionMainContent_divMessage",
				ConfirmationBtn:      "#MainContent_TransactionMainContent_txpTransactions_ctl01_btnNextFlowItem",
				OTPInputField:        "#MainContent_TransactionMainContent_txpTransactions_ctl01_txtSMSToken_txField",
				OTPValidationButton:  "#MainContent_TransactionMainContent_txpTransactions_ctl01_btnNextFlowItem",
				ConfirmTransaction:   "#MainContent_TransactionMainContent_txpTransactions_ctl01_btnNextFlowItem",
				SuccessMessage:       "#MainContent_TransactionMainContent_divMessage",
			},
		},
		{
			ID:           "bfa",
			Name:         "Banco BFA",
			PrimaryColor: "#fe6a05",
			LoginURL:     "https://www.bfa.ao/particulares/login?returnUrl=%2F",
			Selectors: Selectors{
				UsernameField:          "#mat-input-0",
				PasswordField:          "#mat-input-1",
				LoginButton:            "body > app-root > div > div > app-login > div > div > div > div.bob-body-screen > div.bob-White-area.ng-star-inserted > div > div > div > form > div > div.form-group.p-2.mb-0 > div > button",
				TransferMenu:           "https://www.bfa.ao/particulares/accounts/transfers/interbank?idc=5613",
				ClickIbanTabOpen:       "#MainContent_TransactionMainContent_txpTransactions_ctl01_flwData_frlTypeAcc_tb > tbody > tr > td:nth-child(2) > label",
				IbanField:              "#mat-input-1",
				BeneficiaryNameField:   "#mat-input-2",
				AmountField:            "#mat-input-3",
				DescriptionField:       "#mat-input-4",
				SelectBox:              "#mat-select-2",
				SelectOption:           "#mat-option-0",
				ConfirmButton:          "#cdk-step-content-0-0 > form > div > button.btn.btn-primary.col-8.col-md-4.col-lg-3.ml-0",
				OTPInputField:          "#otp-form-sms-input",
				OTPValidationButton:    "#cdk-step-content-0-1 > form > div.row.justify-content-center.mt-4 > button.btn.btn-primary.col-8.col-md-4.col-lg-3.ml-0.ml-md-1.ng-star-inserted",
				AdditionalVerification: "#cdk-step-content-0-1 > form > div:nth-child(1) > div:nth-child(2) > div > div > app-otp-form > div > div > div",
				AdditionalInputField:   "#otp-form-token-input",
				SuccessMessage:         "#mfas-thirdStep > div.col-sm-12.alignBoxes.col-lg-6 > div > app-error-alert > app-alert > div",
			},
		},
		{
			ID:           "bic",
			Name:         "Banco BIC",
			PrimaryColor: "#FF0000",
			LoginURL:     "https://demo-banking.bic.ao/login",
			Selectors: Selectors{
				UsernameField:  "#login-username",
				PasswordField:  "#login-password",
				LoginButton:    "#submit-login",
				TransferMenu:   "#menu-transfers",
				IbanField:      "#iban-recipient",
				AmountField:    "#transfer-value",
				ConfirmButton:  "#execute-transfer",
				SuccessMessage: ".operation-success",
			},
		},
		{
			ID:           "bai",
			Name:         "Banco Bai",
			PrimaryColor: "#1C3765",
			LoginURL:     "https://demo-banking.millennium.ao/login",
			Selectors: Selectors{
				UsernameField:        "#usernameInput > div.input-content > input[type=text]",
				PasswordField:        "#passwordInput > div.input-content > input[type=password]",
				LoginButton:          "#app-content > div.login-wrapper > div.elements-above-all > div.content-wrapper > div.form-wrapper.dark > button",
				SSDConfirmation:      "#modals-centered-overlay-teleport > div > div > div.modal-footer > button.button-primary.square.medium",
				SSDAcknowledgmentBtn: "#app-content > div.features-base-content-wrapper > div.footer-content-wrapper.status-bar-android > div > div > div > button",
				TransferMenu:         "#transfer-section",
				IbanField:            "#beneficiary-iban",
				AmountField:          "#operation-amount",
				ConfirmButton:        "#validate-transfer",
				SuccessMessage:       ".success-notification",
			},
		},
	}
}
