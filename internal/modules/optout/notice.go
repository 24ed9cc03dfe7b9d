package optout

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/likenesshq/core/internal/models"
)

// TemplateError marks a notice that could not be rendered. Render
// failures are permanent: retrying the same inputs cannot succeed.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string { return "render notice: " + e.Err.Error() }
func (e *TemplateError) Unwrap() error { return e.Err }

// The notice body is deliberately free of timestamps or random IDs so
// that rendering the same user/company pair always produces the same
// content hash.
const noticeSubjectTpl = `Likeness opt-out request on behalf of {{.UserName}}`

const noticeBodyTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">Opt-Out Request: Use of Personal Likeness in AI Training</h2>
  <p>To whom it may concern at {{.CompanyName}},</p>
  <p>
    This notice is sent on behalf of <strong>{{.UserName}}</strong>
    ({{.UserEmail}}), who requests that {{.CompanyName}} exclude their
    personal likeness, including photographs and derived biometric data,
    from any dataset used to train, fine-tune, or evaluate machine
    learning models.
  </p>
  <p>
    We ask that you confirm in writing, by reply to this address, that:
  </p>
  <ol style="color:#333">
    <li>No further collection or processing of this person's likeness will occur.</li>
    <li>Existing copies of their likeness are removed from training datasets.</li>
  </ol>
  {{if .PolicyURL}}
  <p style="color:#666;font-size:13px">
    This request is made under the opt-out process published at
    <a href="{{.PolicyURL}}">{{.PolicyURL}}</a>.
  </p>
  {{end}}
  <p>Regards,<br/>The Likeness Registry, on behalf of {{.UserName}}</p>
  <p style="color:#999;font-size:12px">
    Replies to this message are recorded in the request's audit trail.
  </p>
</div>
</body>
</html>`

const followUpSubjectTpl = `Follow-up: likeness opt-out request on behalf of {{.UserName}}`

const followUpBodyTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">Follow-Up: Opt-Out Request Pending Response</h2>
  <p>To whom it may concern at {{.CompanyName}},</p>
  <p>
    We previously sent an opt-out notice on behalf of
    <strong>{{.UserName}}</strong> ({{.UserEmail}}) requesting exclusion of
    their personal likeness from machine learning training data, and have
    not yet received a response.
  </p>
  <p>
    Please confirm in writing, by reply to this address, whether the
    requested exclusion has been carried out.
  </p>
  {{if .PolicyURL}}
  <p style="color:#666;font-size:13px">
    This request is made under the opt-out process published at
    <a href="{{.PolicyURL}}">{{.PolicyURL}}</a>.
  </p>
  {{end}}
  <p>Regards,<br/>The Likeness Registry, on behalf of {{.UserName}}</p>
</div>
</body>
</html>`

type noticeData struct {
	UserName    string
	UserEmail   string
	CompanyName string
	PolicyURL   string
}

var (
	subjectTemplate         = template.Must(template.New("subject").Parse(noticeSubjectTpl))
	bodyTemplate            = template.Must(template.New("body").Parse(noticeBodyTpl))
	followUpSubjectTemplate = template.Must(template.New("fu_subject").Parse(followUpSubjectTpl))
	followUpBodyTemplate    = template.Must(template.New("fu_body").Parse(followUpBodyTpl))
)

// RenderNotice produces the subject and HTML body of the opt-out notice
// for one user/company pair. Deterministic for identical inputs.
func RenderNotice(user *models.UserModel, company *models.CompanyModel) (subject, body string, err error) {
	return render(subjectTemplate, bodyTemplate, user, company)
}

// RenderFollowUp produces the reminder sent when a notice has gone
// unanswered. Deterministic like RenderNotice.
func RenderFollowUp(user *models.UserModel, company *models.CompanyModel) (subject, body string, err error) {
	return render(followUpSubjectTemplate, followUpBodyTemplate, user, company)
}

func render(subjectTpl, bodyTpl *template.Template, user *models.UserModel, company *models.CompanyModel) (string, string, error) {
	if user == nil || company == nil {
		return "", "", &TemplateError{Err: fmt.Errorf("missing user or company")}
	}
	// A notice naming nobody, or from nobody, is not a notice. Reject
	// before rendering instead of mailing a hollow template.
	if user.Name == "" || user.Email == "" {
		return "", "", &TemplateError{Err: fmt.Errorf("user is missing a name or email")}
	}
	if company.Name == "" {
		return "", "", &TemplateError{Err: fmt.Errorf("company is missing a name")}
	}
	data := noticeData{
		UserName:    user.Name,
		UserEmail:   user.Email,
		CompanyName: company.Name,
		PolicyURL:   company.PolicyURL,
	}

	var sb bytes.Buffer
	if err := subjectTpl.Execute(&sb, data); err != nil {
		return "", "", &TemplateError{Err: err}
	}
	var bb bytes.Buffer
	if err := bodyTpl.Execute(&bb, data); err != nil {
		return "", "", &TemplateError{Err: err}
	}
	return sb.String(), bb.String(), nil
}
