package email

import "fmt"

// The templates mirror the admin console's branding. Kept as plain string
// builders — two emails don't justify html/template plumbing yet.

func renderVerification(name, url string, year int) string {
	return fmt.Sprintf(`
  <div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
    <h1 style="color: #333; text-align: center;">Welcome to Gadget Galaxy!</h1>
    <p style="color: #666; font-size: 16px; line-height: 1.5;">Hi %s,</p>
    <p style="color: #666; font-size: 16px; line-height: 1.5;">
      Thanks for joining Gadget Galaxy! Please verify your email address by clicking the button below:
    </p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="%s"
         style="background-color: #4CAF50; color: white; padding: 12px 25px;
                text-decoration: none; border-radius: 4px; display: inline-block;">
        Verify My Email
      </a>
    </div>
    <p style="color: #666;">Or copy and paste this link in your browser:<br>%s</p>
    <p style="color: #999; font-size: 14px;">This link will expire in 24 hours.</p>
    <div style="margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; text-align: center;">
      <p style="color: #999; font-size: 12px;">&copy; %d Gadget Galaxy. All rights reserved.</p>
    </div>
  </div>`, name, url, url, year)
}

func renderPasswordReset(name, url string, year int) string {
	return fmt.Sprintf(`
  <div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
    <h1 style="color: #333; text-align: center;">Reset Your Password</h1>
    <p style="color: #666; font-size: 16px; line-height: 1.5;">Hi %s,</p>
    <p style="color: #666; font-size: 16px; line-height: 1.5;">
      A password reset was requested for your Gadget Galaxy account. Click the button below to choose a new password:
    </p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="%s"
         style="background-color: #2196F3; color: white; padding: 12px 25px;
                text-decoration: none; border-radius: 4px; display: inline-block;">
        Reset My Password
      </a>
    </div>
    <p style="color: #666;">Or copy and paste this link in your browser:<br>%s</p>
    <p style="color: #999; font-size: 14px;">
      This link will expire in 1 hour. If you didn't request a reset, you can safely ignore this email.
    </p>
    <div style="margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; text-align: center;">
      <p style="color: #999; font-size: 12px;">&copy; %d Gadget Galaxy. All rights reserved.</p>
    </div>
  </div>`, name, url, url, year)
}
