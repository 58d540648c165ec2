package mailer

import (
	"fmt"
	"html/template"
	"time"

	"github.com/MrEthical07/authgate/otp"
)

var htmlTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Verification Code</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 0; background-color: #f4f4f4;">
<table border="0" cellpadding="0" cellspacing="0" width="100%" style="max-width: 600px; margin: 0 auto; background-color: #ffffff;">
    <tr>
        <td style="padding: 40px 30px;">
            <p style="font-size: 16px; color: #333333; margin-bottom: 20px;">
                您的验证码是：<br>
                Your verification code is:
            </p>
            <p style="font-size: 32px; font-weight: bold; color: #9B4F96; text-align: center; margin: 30px 0; padding: 10px; border: 2px solid #9B4F96; border-radius: 10px;">
                <strong>{{.Code}}</strong>
            </p>
            <p style="font-size: 16px; color: #333333; margin-bottom: 10px;">
                {{.PurposeZH}}<br>
                {{.PurposeEN}}
            </p>
            <p style="font-size: 16px; color: #333333; margin-bottom: 20px;">
                此验证码将在{{.Minutes}}分钟内有效。请勿将验证码分享给他人。<br>
                This code is valid for {{.Minutes}} minutes. Please do not share it with anyone.
            </p>
            <p style="font-size: 16px; color: #333333; margin-bottom: 20px;">
                如果您没有请求此验证码，请忽略此邮件。<br>
                If you didn't request this code, please ignore this email.
            </p>
        </td>
    </tr>
    <tr>
        <td style="padding: 20px 30px; background-color: #f0e6ff; text-align: center; color: #9B4F96; font-size: 14px;">
            <p style="margin: 0;">
                此邮件由系统自动发送，请勿回复。<br>
                This is an automated message. Please do not reply.
            </p>
        </td>
    </tr>
</table>
</body>
</html>
`))

type templateData struct {
	Code      string
	Minutes   int
	PurposeZH string
	PurposeEN string
}

func newTemplateData(code string, purpose otp.Purpose, validity time.Duration) templateData {
	d := templateData{Code: code, Minutes: int(validity / time.Minute)}
	switch purpose {
	case otp.PurposeSignIn:
		d.PurposeZH = "请使用该验证码登录"
		d.PurposeEN = "Please use this code to complete your sign-in"
	case otp.PurposeEmailVerification:
		d.PurposeZH = "请验证您的邮箱以完成注册"
		d.PurposeEN = "Please verify your email to complete registration"
	case otp.PurposeForgetPassword:
		d.PurposeZH = "请使用该验证码重置您的密码"
		d.PurposeEN = "Please use this code to reset your password"
	}
	return d
}

func subject(code string, validity time.Duration) string {
	return fmt.Sprintf("Your Verification Code is [%s], Valid for %d Minutes", code, int(validity/time.Minute))
}

func plainBody(code string, validity time.Duration) string {
	m := int(validity / time.Minute)
	return fmt.Sprintf("您的验证码是: %s，有效期%d分钟。\nYour verification code is: %s, valid for %d minutes.", code, m, code, m)
}
